package refunds

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/pkg/httpclient"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
)

// GatewayConfig holds the payment gateway connection settings.
type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

// GatewayClient issues refund calls against the payment gateway. Calls run
// behind a circuit breaker so a degraded gateway fails fast instead of
// stalling cancellations.
type GatewayClient struct {
	http    *httpclient.Client
	breaker *resilience.CircuitBreaker
}

// NewGatewayClient creates a payment gateway refund client.
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	return &GatewayClient{
		http: httpclient.New(cfg.BaseURL,
			httpclient.WithBasicAuth(cfg.KeyID, cfg.KeySecret),
		),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("payment-gateway")),
	}
}

type refundRequest struct {
	// Amount is in the smallest currency unit (paise).
	Amount int64             `json:"amount"`
	Speed  string            `json:"speed"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RefundPayment asks the gateway to refund the given amount (in rupees)
// against the captured payment.
func (g *GatewayClient) RefundPayment(ctx context.Context, paymentID string, amount float64, rideID string) error {
	req := refundRequest{
		// Round, don't truncate: float64(2.01)*100 is 200.99999...
		Amount: int64(math.Round(amount * 100)),
		Speed:  "normal",
		Notes:  map[string]string{"ride_id": rideID},
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		var resp refundResponse
		if err := g.http.Post(ctx, fmt.Sprintf("/v1/payments/%s/refund", paymentID), req, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return fmt.Errorf("failed to refund payment %s: %w", paymentID, err)
	}

	resp := result.(*refundResponse)
	logger.WithContext(ctx).Info("gateway refund issued",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", resp.ID),
		zap.String("status", resp.Status))
	return nil
}
