package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"credentials", ErrInvalidCredentials, http.StatusUnauthorized},
		{"token", fmt.Errorf("%w: expired", ErrInvalidToken), http.StatusUnauthorized},
		{"validation", Validation("amount must be greater than zero"), http.StatusBadRequest},
		{"not found", NotFound("account not found"), http.StatusNotFound},
		{"funds", ErrInsufficientFunds, http.StatusBadRequest},
		{"otp", ErrInvalidOTP, http.StatusBadRequest},
		{"establishment", ErrInvalidEstablishment, http.StatusBadRequest},
		{"credit limit", ErrCreditLimitExceeded, http.StatusBadRequest},
		{"transaction", Transaction(errors.New("connection reset")), http.StatusInternalServerError},
		{"timeout", Transaction(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: relation \"bank.accounts\" does not exist")))
	assert.Equal(t, "transaction failed", Message(Transaction(errors.New("pq: deadlock detected"))))
	assert.Equal(t, "operation timed out", Message(Transaction(context.DeadlineExceeded)))
	assert.Equal(t, "account not found", Message(NotFound("account not found")))
	assert.Equal(t, "insufficient funds", Message(fmt.Errorf("withdraw: %w", ErrInsufficientFunds)))
}

func TestTransactionDoesNotDoubleWrap(t *testing.T) {
	first := Transaction(errors.New("commit failed"))
	assert.Same(t, first, Transaction(first))
	assert.Nil(t, Transaction(nil))
	assert.True(t, Known(first))
	assert.False(t, Known(errors.New("other")))
}
