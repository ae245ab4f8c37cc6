package refunds

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/internal/wallet"
	"github.com/richxcame/ride-dispatch/pkg/logger"
)

// WalletStore credits refunds and exposes the durable idempotency guard.
type WalletStore interface {
	Credit(ctx context.Context, userID uuid.UUID, rideID *uuid.UUID, txType wallet.TransactionType, amount float64, description string) error
	HasRefundForRide(ctx context.Context, rideID uuid.UUID) (bool, error)
}

// RideStore writes the refund outcome onto the ride.
type RideStore interface {
	RecordRefund(ctx context.Context, rideID uuid.UUID, refundAmount float64) error
}

// Gateway issues refunds against the payment gateway.
type Gateway interface {
	RefundPayment(ctx context.Context, paymentID string, amount float64, rideID string) error
}

// Config holds the cancellation fee policy.
type Config struct {
	// CancellationFee is charged when a rider cancels after a driver
	// committed to the trip.
	CancellationFee float64
}

// DefaultConfig returns the standard fee policy.
func DefaultConfig() Config {
	return Config{CancellationFee: 50}
}

// Orchestrator computes cancellation fees and issues refunds exactly once
// per ride. The refund ledger entry in the wallet store is the write-once
// guard; it is durable, so the guarantee holds across instances.
type Orchestrator struct {
	wallets WalletStore
	rides   RideStore
	gateway Gateway
	cfg     Config
}

// NewOrchestrator creates a refund orchestrator.
func NewOrchestrator(wallets WalletStore, rideStore RideStore, gateway Gateway, cfg Config) *Orchestrator {
	return &Orchestrator{
		wallets: wallets,
		rides:   rideStore,
		gateway: gateway,
		cfg:     cfg,
	}
}

// ComputeCancellationFee returns the fee for a cancellation. A fee applies
// only when a driver had already committed (accepted or arrived), the rider
// initiated the cancellation, and the reason is not system-attributed.
func (o *Orchestrator) ComputeCancellationFee(originalStatus rides.Status, cancelledBy, reason string) float64 {
	if originalStatus != rides.StatusAccepted && originalStatus != rides.StatusArrived {
		return 0
	}
	if cancelledBy != rides.CancelledByRider {
		return 0
	}
	if rides.SystemReasons[reason] {
		return 0
	}
	return o.cfg.CancellationFee
}

// Refund returns the rider's money after a cancellation. Wallet-paid amounts
// are credited back directly. Gateway-paid amounts are refunded through the
// gateway and, regardless of that call's outcome, also credited to the
// wallet so the rider's entitlement has a durable record while the gateway
// settles asynchronously. Hybrid payments run both paths independently.
//
// The method is idempotent: an existing refund ledger entry for the ride
// makes it a no-op.
func (o *Orchestrator) Refund(ctx context.Context, ride *rides.Ride, fee float64) error {
	log := logger.WithContext(ctx).With(zap.String("ride_id", ride.ID.String()))

	done, err := o.wallets.HasRefundForRide(ctx, ride.ID)
	if err != nil {
		return fmt.Errorf("failed to check refund ledger: %w", err)
	}
	if done {
		log.Info("refund already processed, skipping")
		return nil
	}

	refundAmount := ride.PaidAmount - fee
	if refundAmount < 0 {
		refundAmount = 0
	}

	if refundAmount == 0 {
		// The fee consumed the entire payment. Mark the ride refunded for
		// bookkeeping but write no monetary transaction.
		if err := o.rides.RecordRefund(ctx, ride.ID, 0); err != nil {
			return fmt.Errorf("failed to record zero refund: %w", err)
		}
		log.Info("cancellation fee consumed full payment, no refund due",
			zap.Float64("fee", fee))
		return nil
	}

	rideID := ride.ID
	switch ride.PaymentMethod {
	case rides.PaymentWallet:
		if err := o.wallets.Credit(ctx, ride.RiderID, &rideID, wallet.TransactionRefund, refundAmount,
			fmt.Sprintf("Refund for cancelled ride %s", ride.ID)); err != nil {
			return fmt.Errorf("failed to credit wallet refund: %w", err)
		}

	case rides.PaymentRazorpay:
		o.refundViaGateway(ctx, ride, refundAmount)
		if err := o.wallets.Credit(ctx, ride.RiderID, &rideID, wallet.TransactionRefund, refundAmount,
			fmt.Sprintf("Refund for cancelled ride %s", ride.ID)); err != nil {
			return fmt.Errorf("failed to credit wallet refund: %w", err)
		}

	case rides.PaymentHybrid:
		walletPortion := ride.WalletPaid
		if walletPortion > refundAmount {
			walletPortion = refundAmount
		}
		gatewayPortion := refundAmount - walletPortion
		if gatewayPortion > 0 {
			o.refundViaGateway(ctx, ride, gatewayPortion)
		}
		if err := o.wallets.Credit(ctx, ride.RiderID, &rideID, wallet.TransactionRefund, refundAmount,
			fmt.Sprintf("Refund for cancelled ride %s", ride.ID)); err != nil {
			return fmt.Errorf("failed to credit wallet refund: %w", err)
		}

	case rides.PaymentCash:
		// Nothing was collected up front. Record the outcome only.

	default:
		return fmt.Errorf("unknown payment method %q", ride.PaymentMethod)
	}

	if err := o.rides.RecordRefund(ctx, ride.ID, refundAmount); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}

	log.Info("refund processed",
		zap.Float64("refund_amount", refundAmount),
		zap.Float64("fee", fee),
		zap.String("payment_method", string(ride.PaymentMethod)))
	return nil
}

// refundViaGateway issues the gateway refund. Failures are logged and do not
// block the wallet credit, which is the durable record of entitlement.
func (o *Orchestrator) refundViaGateway(ctx context.Context, ride *rides.Ride, amount float64) {
	if ride.GatewayPaymentID == nil {
		logger.WithContext(ctx).Error("gateway refund skipped, no payment reference",
			zap.String("ride_id", ride.ID.String()))
		return
	}
	if err := o.gateway.RefundPayment(ctx, *ride.GatewayPaymentID, amount, ride.ID.String()); err != nil {
		logger.WithContext(ctx).Error("gateway refund failed, wallet credit still applies",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
	}
}
