package services

import (
	"context"
	"fmt"

	"gopool/internal/models"
	"gopool/internal/repositories/interfaces"
	"gopool/internal/utils"
	"gopool/pkg/logger"
	"gopool/pkg/payment"

	"github.com/google/uuid"
)

type PaymentService interface {
	// ProcessTripPayment settles one seat payment, all-or-nothing. A
	// timeout is a payment failure.
	ProcessTripPayment(ctx context.Context, request *TripPaymentRequest) (*TripPaymentResult, error)

	GetLedger(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)
	GetTripLedger(ctx context.Context, tripID string) ([]*models.LedgerEntry, error)
}

type TripPaymentRequest struct {
	PayerID         string               `json:"payer_id" validate:"required"`
	PayeeID         string               `json:"payee_id" validate:"required"`
	TripID          string               `json:"trip_id" validate:"required"`
	Amount          float64              `json:"amount" validate:"required,gt=0"`
	Currency        string               `json:"currency"`
	Method          models.PaymentMethod `json:"method" validate:"required,oneof=wallet card"`
	PaymentMethodID string               `json:"payment_method_id"`
}

type TripPaymentResult struct {
	Success       bool                 `json:"success"`
	TransactionID string               `json:"transaction_id"`
	Method        models.PaymentMethod `json:"method"`
}

type paymentService struct {
	userRepo   interfaces.UserRepository
	ledgerRepo interfaces.LedgerRepository
	provider   payment.PaymentProvider
	logger     *logger.Logger
}

func NewPaymentService(
	userRepo interfaces.UserRepository,
	ledgerRepo interfaces.LedgerRepository,
	provider payment.PaymentProvider,
	log *logger.Logger,
) PaymentService {
	return &paymentService{
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		provider:   provider,
		logger:     log,
	}
}

func (s *paymentService) ProcessTripPayment(ctx context.Context, request *TripPaymentRequest) (*TripPaymentResult, error) {
	if request.Currency == "" {
		request.Currency = utils.DefaultCurrency
	}

	ctx, cancel := context.WithTimeout(ctx, utils.PaymentTimeout)
	defer cancel()

	var result *TripPaymentResult
	var err error

	switch request.Method {
	case models.PaymentMethodWallet:
		result, err = s.processWalletPayment(ctx, request)
	case models.PaymentMethodCard:
		result, err = s.processCardPayment(ctx, request)
	default:
		return nil, models.NewDomainError(models.CodeValidationFailed,
			fmt.Sprintf("unsupported payment method %q", request.Method))
	}

	if err != nil {
		s.logger.WithError(err).
			WithUserID(request.PayerID).
			WithField("trip_id", request.TripID).
			Warn("Trip payment failed")
		return nil, err
	}

	s.logger.LogPaymentEvent(result.TransactionID, "trip_payment_settled", request.Amount, request.Currency)
	return result, nil
}

// processWalletPayment moves funds between wallets and records both ledger
// sides. The conditional debit is the only overdraw guard needed.
func (s *paymentService) processWalletPayment(ctx context.Context, request *TripPaymentRequest) (*TripPaymentResult, error) {
	if err := s.userRepo.DebitWallet(ctx, request.PayerID, request.Amount); err != nil {
		if models.CodeOf(err) == models.CodeInsufficientFunds {
			return nil, err
		}
		return nil, models.NewPaymentError(err)
	}

	if err := s.userRepo.CreditWallet(ctx, request.PayeeID, request.Amount); err != nil {
		// Return the payer's funds before surfacing the failure.
		if refundErr := s.userRepo.CreditWallet(ctx, request.PayerID, request.Amount); refundErr != nil {
			s.logger.WithError(refundErr).
				WithUserID(request.PayerID).
				Error("Failed to return debited funds after credit failure")
		}
		return nil, models.NewPaymentError(err)
	}

	transactionID := uuid.NewString()
	s.recordLedgerPair(ctx, request, transactionID)

	return &TripPaymentResult{
		Success:       true,
		TransactionID: transactionID,
		Method:        models.PaymentMethodWallet,
	}, nil
}

func (s *paymentService) processCardPayment(ctx context.Context, request *TripPaymentRequest) (*TripPaymentResult, error) {
	if s.provider == nil {
		return nil, models.NewPaymentError(fmt.Errorf("no card payment provider configured"))
	}

	response, err := s.provider.ProcessPayment(ctx, &payment.PaymentRequest{
		PaymentMethodID: request.PaymentMethodID,
		Amount:          request.Amount,
		Currency:        request.Currency,
		Description:     fmt.Sprintf("Seat payment for trip %s", request.TripID),
		CustomerID:      request.PayerID,
		Metadata: map[string]interface{}{
			"trip_id":  request.TripID,
			"payee_id": request.PayeeID,
		},
	})
	if err != nil {
		return nil, models.NewPaymentError(err)
	}

	s.recordLedgerPair(ctx, request, response.TransactionID)

	return &TripPaymentResult{
		Success:       true,
		TransactionID: response.TransactionID,
		Method:        models.PaymentMethodCard,
	}, nil
}

// recordLedgerPair appends the debit/credit rows. Ledger writes are
// best-effort relative to the settled payment; failures are logged.
func (s *paymentService) recordLedgerPair(ctx context.Context, request *TripPaymentRequest, transactionID string) {
	entries := []*models.LedgerEntry{
		{
			UserID:        request.PayerID,
			TripID:        request.TripID,
			Direction:     models.LedgerDebit,
			Amount:        request.Amount,
			Currency:      request.Currency,
			Method:        request.Method,
			TransactionID: transactionID,
		},
		{
			UserID:        request.PayeeID,
			TripID:        request.TripID,
			Direction:     models.LedgerCredit,
			Amount:        request.Amount,
			Currency:      request.Currency,
			Method:        request.Method,
			TransactionID: transactionID,
		},
	}

	for _, entry := range entries {
		if err := s.ledgerRepo.Record(ctx, entry); err != nil {
			s.logger.WithError(err).
				WithField("transaction_id", transactionID).
				Error("Failed to record ledger entry")
		}
	}
}

func (s *paymentService) GetLedger(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > utils.MaxPageSize {
		limit = utils.DefaultPageSize
	}
	return s.ledgerRepo.GetByUser(ctx, userID, limit)
}

func (s *paymentService) GetTripLedger(ctx context.Context, tripID string) ([]*models.LedgerEntry, error) {
	return s.ledgerRepo.GetByTrip(ctx, tripID)
}
