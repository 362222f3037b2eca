package service

import "github.com/maxim1976/eshop/internal/constants"

// paymentTransitions 支付状态机
//
// pending/processing 可走向终态；paid 之后只能进入退款分支；
// failed/cancelled/refunded 为终态。
var paymentTransitions = map[string][]string{
	constants.PaymentStatusPending: {
		constants.PaymentStatusProcessing,
		constants.PaymentStatusPaid,
		constants.PaymentStatusFailed,
		constants.PaymentStatusCancelled,
	},
	constants.PaymentStatusProcessing: {
		constants.PaymentStatusPaid,
		constants.PaymentStatusFailed,
		constants.PaymentStatusCancelled,
	},
	constants.PaymentStatusPaid: {
		constants.PaymentStatusPartialRefund,
		constants.PaymentStatusRefunded,
	},
	constants.PaymentStatusPartialRefund: {
		constants.PaymentStatusRefunded,
	},
}

// isPaymentTransitionAllowed 判断支付状态是否允许流转
func isPaymentTransitionAllowed(from, to string) bool {
	if from == to {
		return false
	}
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// refundTransitions 退款状态机
var refundTransitions = map[string][]string{
	constants.RefundStatusPending: {
		constants.RefundStatusProcessing,
		constants.RefundStatusCancelled,
		constants.RefundStatusFailed,
	},
	constants.RefundStatusProcessing: {
		constants.RefundStatusCompleted,
		constants.RefundStatusFailed,
	},
}

// isRefundTransitionAllowed 判断退款状态是否允许流转
func isRefundTransitionAllowed(from, to string) bool {
	if from == to {
		return false
	}
	for _, allowed := range refundTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
