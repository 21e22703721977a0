package services

import (
	"context"
	"testing"

	"gopool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentFixture(provider *fakePaymentProvider, users ...*models.User) (*fakeUserRepo, *fakeLedgerRepo, PaymentService) {
	userRepo := newFakeUserRepo(users...)
	ledgerRepo := &fakeLedgerRepo{}
	svc := NewPaymentService(userRepo, ledgerRepo, provider, newTestLogger())
	return userRepo, ledgerRepo, svc
}

func TestWalletPaymentMovesFundsAndRecordsLedger(t *testing.T) {
	userRepo, ledgerRepo, svc := newPaymentFixture(&fakePaymentProvider{},
		testUser("payer", 100), testUser("payee", 0))

	result, err := svc.ProcessTripPayment(context.Background(), &TripPaymentRequest{
		PayerID: "payer",
		PayeeID: "payee",
		TripID:  "trip-1",
		Amount:  30,
		Method:  models.PaymentMethodWallet,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.TransactionID)

	payer, _ := userRepo.GetByID(context.Background(), "payer")
	payee, _ := userRepo.GetByID(context.Background(), "payee")
	assert.InDelta(t, 70, payer.WalletBalance, 0.001)
	assert.InDelta(t, 30, payee.WalletBalance, 0.001)

	require.Len(t, ledgerRepo.entries, 2)
	assert.Equal(t, models.LedgerDebit, ledgerRepo.entries[0].Direction)
	assert.Equal(t, models.LedgerCredit, ledgerRepo.entries[1].Direction)
	assert.Equal(t, result.TransactionID, ledgerRepo.entries[0].TransactionID)
}

func TestWalletPaymentInsufficientFunds(t *testing.T) {
	userRepo, ledgerRepo, svc := newPaymentFixture(&fakePaymentProvider{},
		testUser("payer", 10), testUser("payee", 0))

	_, err := svc.ProcessTripPayment(context.Background(), &TripPaymentRequest{
		PayerID: "payer",
		PayeeID: "payee",
		TripID:  "trip-1",
		Amount:  30,
		Method:  models.PaymentMethodWallet,
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	payer, _ := userRepo.GetByID(context.Background(), "payer")
	assert.InDelta(t, 10, payer.WalletBalance, 0.001)
	assert.Empty(t, ledgerRepo.entries)
}

func TestCardPaymentUsesProvider(t *testing.T) {
	provider := &fakePaymentProvider{}
	_, ledgerRepo, svc := newPaymentFixture(provider,
		testUser("payer", 0), testUser("payee", 0))

	result, err := svc.ProcessTripPayment(context.Background(), &TripPaymentRequest{
		PayerID:         "payer",
		PayeeID:         "payee",
		TripID:          "trip-1",
		Amount:          30,
		Method:          models.PaymentMethodCard,
		PaymentMethodID: "pm_123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodCard, result.Method)
	assert.Equal(t, 1, provider.payments)
	assert.Len(t, ledgerRepo.entries, 2)
}

func TestCardPaymentDeclined(t *testing.T) {
	_, ledgerRepo, svc := newPaymentFixture(&fakePaymentProvider{fail: true},
		testUser("payer", 0), testUser("payee", 0))

	_, err := svc.ProcessTripPayment(context.Background(), &TripPaymentRequest{
		PayerID: "payer",
		PayeeID: "payee",
		TripID:  "trip-1",
		Amount:  30,
		Method:  models.PaymentMethodCard,
	})
	assert.Equal(t, models.CodePaymentFailed, models.CodeOf(err))
	assert.Empty(t, ledgerRepo.entries)
}

func TestUnsupportedPaymentMethod(t *testing.T) {
	_, _, svc := newPaymentFixture(&fakePaymentProvider{}, testUser("payer", 0))

	_, err := svc.ProcessTripPayment(context.Background(), &TripPaymentRequest{
		PayerID: "payer",
		PayeeID: "payee",
		TripID:  "trip-1",
		Amount:  30,
		Method:  models.PaymentMethod("check"),
	})
	assert.Equal(t, models.CodeValidationFailed, models.CodeOf(err))
}
