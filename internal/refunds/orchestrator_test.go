package refunds

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/internal/wallet"
)

// ============================================================================
// Mocks
// ============================================================================

type mockWalletStore struct {
	mock.Mock
}

func (m *mockWalletStore) Credit(ctx context.Context, userID uuid.UUID, rideID *uuid.UUID, txType wallet.TransactionType, amount float64, description string) error {
	args := m.Called(ctx, userID, rideID, txType, amount, description)
	return args.Error(0)
}

func (m *mockWalletStore) HasRefundForRide(ctx context.Context, rideID uuid.UUID) (bool, error) {
	args := m.Called(ctx, rideID)
	return args.Bool(0), args.Error(1)
}

type mockRideStore struct {
	mock.Mock
}

func (m *mockRideStore) RecordRefund(ctx context.Context, rideID uuid.UUID, refundAmount float64) error {
	args := m.Called(ctx, rideID, refundAmount)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) RefundPayment(ctx context.Context, paymentID string, amount float64, rideID string) error {
	args := m.Called(ctx, paymentID, amount, rideID)
	return args.Error(0)
}

func newOrchestrator() (*Orchestrator, *mockWalletStore, *mockRideStore, *mockGateway) {
	wallets := new(mockWalletStore)
	rideStore := new(mockRideStore)
	gateway := new(mockGateway)
	return NewOrchestrator(wallets, rideStore, gateway, DefaultConfig()), wallets, rideStore, gateway
}

func cancelledRide(method rides.PaymentMethod, paid, walletPaid float64) *rides.Ride {
	paymentID := "pay_29QQoUBi66xm2f"
	return &rides.Ride{
		ID:               uuid.New(),
		RiderID:          uuid.New(),
		Status:           rides.StatusCancelled,
		PaymentMethod:    method,
		PaymentStatus:    rides.PaymentPaid,
		PaidAmount:       paid,
		WalletPaid:       walletPaid,
		GatewayPaymentID: &paymentID,
	}
}

// ============================================================================
// ComputeCancellationFee
// ============================================================================

func TestComputeCancellationFee(t *testing.T) {
	o, _, _, _ := newOrchestrator()

	tests := []struct {
		name        string
		status      rides.Status
		cancelledBy string
		reason      string
		want        float64
	}{
		{"rider cancels after accept", rides.StatusAccepted, rides.CancelledByRider, "changed plans", 50},
		{"rider cancels after arrival", rides.StatusArrived, rides.CancelledByRider, "", 50},
		{"rider cancels before accept", rides.StatusRequested, rides.CancelledByRider, "", 0},
		{"driver cancels after accept", rides.StatusAccepted, rides.CancelledByDriver, "", 0},
		{"system expiry after accept", rides.StatusAccepted, rides.CancelledBySystem, rides.ReasonAcceptTimeout, 0},
		{"rider cancel with system reason", rides.StatusAccepted, rides.CancelledByRider, rides.ReasonNoDriverFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.ComputeCancellationFee(tt.status, tt.cancelledBy, tt.reason))
		})
	}
}

// ============================================================================
// Refund
// ============================================================================

func TestRefund_WalletPaidAfterAccept(t *testing.T) {
	o, wallets, rideStore, _ := newOrchestrator()
	ride := cancelledRide(rides.PaymentWallet, 300, 300)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(false, nil)
	wallets.On("Credit", mock.Anything, ride.RiderID, &ride.ID, wallet.TransactionRefund, 250.0, mock.Anything).Return(nil)
	rideStore.On("RecordRefund", mock.Anything, ride.ID, 250.0).Return(nil)

	err := o.Refund(context.Background(), ride, 50)
	require.NoError(t, err)
	wallets.AssertExpectations(t)
	rideStore.AssertExpectations(t)
}

func TestRefund_NoFeeBeforeAccept(t *testing.T) {
	o, wallets, rideStore, _ := newOrchestrator()
	ride := cancelledRide(rides.PaymentWallet, 300, 300)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(false, nil)
	wallets.On("Credit", mock.Anything, ride.RiderID, &ride.ID, wallet.TransactionRefund, 300.0, mock.Anything).Return(nil)
	rideStore.On("RecordRefund", mock.Anything, ride.ID, 300.0).Return(nil)

	err := o.Refund(context.Background(), ride, 0)
	require.NoError(t, err)
	wallets.AssertExpectations(t)
}

func TestRefund_SecondCallIsNoOp(t *testing.T) {
	o, wallets, rideStore, gateway := newOrchestrator()
	ride := cancelledRide(rides.PaymentWallet, 300, 300)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(true, nil)

	err := o.Refund(context.Background(), ride, 50)
	require.NoError(t, err)
	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rideStore.AssertNotCalled(t, "RecordRefund", mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefund_GatewayPaidCreditsWalletRegardless(t *testing.T) {
	o, wallets, rideStore, gateway := newOrchestrator()
	ride := cancelledRide(rides.PaymentRazorpay, 300, 0)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(false, nil)
	gateway.On("RefundPayment", mock.Anything, *ride.GatewayPaymentID, 250.0, ride.ID.String()).
		Return(errors.New("gateway unavailable"))
	wallets.On("Credit", mock.Anything, ride.RiderID, &ride.ID, wallet.TransactionRefund, 250.0, mock.Anything).Return(nil)
	rideStore.On("RecordRefund", mock.Anything, ride.ID, 250.0).Return(nil)

	err := o.Refund(context.Background(), ride, 50)
	require.NoError(t, err, "gateway failure must not block the wallet credit")
	wallets.AssertExpectations(t)
	rideStore.AssertExpectations(t)
}

func TestRefund_HybridSplitsGatewayPortion(t *testing.T) {
	o, wallets, rideStore, gateway := newOrchestrator()
	ride := cancelledRide(rides.PaymentHybrid, 300, 100)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(false, nil)
	// Fee 50 leaves 250 due: 100 came from the wallet, 150 from the gateway.
	gateway.On("RefundPayment", mock.Anything, *ride.GatewayPaymentID, 150.0, ride.ID.String()).Return(nil)
	wallets.On("Credit", mock.Anything, ride.RiderID, &ride.ID, wallet.TransactionRefund, 250.0, mock.Anything).Return(nil)
	rideStore.On("RecordRefund", mock.Anything, ride.ID, 250.0).Return(nil)

	err := o.Refund(context.Background(), ride, 50)
	require.NoError(t, err)
	gateway.AssertExpectations(t)
	wallets.AssertExpectations(t)
}

func TestRefund_FeeConsumesEntirePayment(t *testing.T) {
	o, wallets, rideStore, gateway := newOrchestrator()
	ride := cancelledRide(rides.PaymentWallet, 40, 40)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(false, nil)
	rideStore.On("RecordRefund", mock.Anything, ride.ID, 0.0).Return(nil)

	err := o.Refund(context.Background(), ride, 50)
	require.NoError(t, err)
	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rideStore.AssertExpectations(t)
}

func TestRefund_LedgerCheckFailureIsAnError(t *testing.T) {
	o, wallets, _, _ := newOrchestrator()
	ride := cancelledRide(rides.PaymentWallet, 300, 300)

	wallets.On("HasRefundForRide", mock.Anything, ride.ID).Return(false, errors.New("db down"))

	err := o.Refund(context.Background(), ride, 50)
	require.Error(t, err)
}
