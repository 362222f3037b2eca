package service

import (
	"testing"

	"github.com/maxim1976/eshop/internal/constants"
)

func TestPaymentTransitions(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{constants.PaymentStatusPending, constants.PaymentStatusProcessing, true},
		{constants.PaymentStatusPending, constants.PaymentStatusPaid, true},
		{constants.PaymentStatusPending, constants.PaymentStatusFailed, true},
		{constants.PaymentStatusPending, constants.PaymentStatusCancelled, true},
		{constants.PaymentStatusProcessing, constants.PaymentStatusPaid, true},
		{constants.PaymentStatusProcessing, constants.PaymentStatusCancelled, true},
		{constants.PaymentStatusPaid, constants.PaymentStatusPartialRefund, true},
		{constants.PaymentStatusPaid, constants.PaymentStatusRefunded, true},
		{constants.PaymentStatusPartialRefund, constants.PaymentStatusRefunded, true},

		// 终态与非法回退
		{constants.PaymentStatusFailed, constants.PaymentStatusPaid, false},
		{constants.PaymentStatusCancelled, constants.PaymentStatusPending, false},
		{constants.PaymentStatusPaid, constants.PaymentStatusPending, false},
		{constants.PaymentStatusPaid, constants.PaymentStatusFailed, false},
		{constants.PaymentStatusRefunded, constants.PaymentStatusPaid, false},
		{constants.PaymentStatusPending, constants.PaymentStatusPending, false},
		{constants.PaymentStatusPending, constants.PaymentStatusRefunded, false},
		{"unknown", constants.PaymentStatusPaid, false},
	}
	for _, tc := range cases {
		if got := isPaymentTransitionAllowed(tc.from, tc.to); got != tc.want {
			t.Errorf("payment %s -> %s: want %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestRefundTransitions(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{constants.RefundStatusPending, constants.RefundStatusProcessing, true},
		{constants.RefundStatusPending, constants.RefundStatusCancelled, true},
		{constants.RefundStatusPending, constants.RefundStatusFailed, true},
		{constants.RefundStatusProcessing, constants.RefundStatusCompleted, true},
		{constants.RefundStatusProcessing, constants.RefundStatusFailed, true},

		{constants.RefundStatusPending, constants.RefundStatusCompleted, false},
		{constants.RefundStatusProcessing, constants.RefundStatusCancelled, false},
		{constants.RefundStatusCompleted, constants.RefundStatusFailed, false},
		{constants.RefundStatusCancelled, constants.RefundStatusProcessing, false},
		{constants.RefundStatusFailed, constants.RefundStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := isRefundTransitionAllowed(tc.from, tc.to); got != tc.want {
			t.Errorf("refund %s -> %s: want %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}
