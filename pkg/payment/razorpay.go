package payment

import (
	"context"
	"fmt"

	"github.com/razorpay/razorpay-go"
)

type RazorpayProvider struct {
	client *razorpay.Client
}

func NewRazorpayProvider(keyID, keySecret string) *RazorpayProvider {
	return &RazorpayProvider{
		client: razorpay.NewClient(keyID, keySecret),
	}
}

func (r *RazorpayProvider) ProcessPayment(ctx context.Context, request *PaymentRequest) (*PaymentResponse, error) {
	// Create order first
	orderData := map[string]interface{}{
		"amount":   int(request.Amount * 100), // Amount in paise
		"currency": request.Currency,
		"receipt":  request.CustomerID,
		"notes":    request.Metadata,
	}

	order, err := r.client.Order.Create(orderData, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// Payments are authorized on the frontend and then captured.
	return &PaymentResponse{
		TransactionID: order["id"].(string),
		Status:        "created",
		Amount:        float64(order["amount"].(int)) / 100,
		Currency:      order["currency"].(string),
		CreatedAt:     int64(order["created_at"].(int)),
	}, nil
}

func (r *RazorpayProvider) RefundPayment(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	refundData := map[string]interface{}{
		"amount": int(request.Amount * 100),
		"notes": map[string]interface{}{
			"reason": request.Reason,
		},
	}

	amount := int(request.Amount * 100)
	refund, err := r.client.Payment.Refund(request.TransactionID, amount, refundData, map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResponse{
		RefundID:  refund["id"].(string),
		Status:    refund["status"].(string),
		Amount:    float64(refund["amount"].(int)) / 100,
		Currency:  refund["currency"].(string),
		CreatedAt: int64(refund["created_at"].(int)),
	}, nil
}
