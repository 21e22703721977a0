package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeProvider struct {
	client *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeProvider{
		client: sc,
	}
}

func (s *StripeProvider) ProcessPayment(ctx context.Context, request *PaymentRequest) (*PaymentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(int64(request.Amount * 100)), // Convert to cents
		Currency:           stripe.String(request.Currency),
		PaymentMethod:      stripe.String(request.PaymentMethodID),
		Customer:           stripe.String(request.CustomerID),
		Description:        stripe.String(request.Description),
		ConfirmationMethod: stripe.String("manual"),
		Confirm:            stripe.Bool(true),
	}

	// Add metadata
	if request.Metadata != nil {
		for key, value := range request.Metadata {
			params.AddMetadata(key, fmt.Sprintf("%v", value))
		}
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &PaymentResponse{
		TransactionID: pi.ID,
		Status:        string(pi.Status),
		Amount:        float64(pi.Amount) / 100,
		Currency:      string(pi.Currency),
		Fees:          float64(pi.ApplicationFeeAmount) / 100,
		CreatedAt:     pi.Created,
		Metadata:      convertStripeMetadata(pi.Metadata),
	}, nil
}

func (s *StripeProvider) RefundPayment(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(request.TransactionID),
		Reason:        stripe.String(request.Reason),
	}

	if request.Amount > 0 {
		params.Amount = stripe.Int64(int64(request.Amount * 100))
	}

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResponse{
		RefundID:  refund.ID,
		Status:    string(refund.Status),
		Amount:    float64(refund.Amount) / 100,
		Currency:  string(refund.Currency),
		CreatedAt: refund.Created,
	}, nil
}

// Helper functions
func convertStripeMetadata(metadata map[string]string) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range metadata {
		result[key] = value
	}
	return result
}
