package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status PaymentStatus
		want   bool
	}{
		{PaymentStatusInitiated, false},
		{PaymentStatusCompleted, true},
		{PaymentStatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMinDepositAmount(t *testing.T) {
	if !MinDepositAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("MinDepositAmount = %s, want 10", MinDepositAmount)
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewInvalidAmountError("too small")
	if err.Code != ErrCodeInvalidAmount {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInvalidAmount)
	}
	if err.Error() == "" {
		t.Error("Error() must not be empty")
	}
}
