package service

import "errors"

var (
	ErrPaymentInvalid        = errors.New("payment input invalid")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentExists         = errors.New("payment already exists for order")
	ErrPaymentCreateFailed   = errors.New("payment create failed")
	ErrPaymentUpdateFailed   = errors.New("payment update failed")
	ErrPaymentStatusInvalid  = errors.New("payment status transition invalid")
	ErrPaymentAmountMismatch = errors.New("payment amount mismatch")
	ErrCallbackInvalid       = errors.New("payment callback invalid")
	ErrSignatureInvalid      = errors.New("payment callback signature invalid")

	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderFetchFailed  = errors.New("order fetch failed")
	ErrOrderUpdateFailed = errors.New("order update failed")

	ErrRefundInvalid        = errors.New("refund input invalid")
	ErrRefundNotFound       = errors.New("refund not found")
	ErrRefundNotAllowed     = errors.New("refund not allowed for payment status")
	ErrRefundInProgress     = errors.New("refund already in progress")
	ErrRefundAmountExceeded = errors.New("refund amount exceeds refundable balance")
	ErrRefundStatusInvalid  = errors.New("refund status transition invalid")
	ErrRefundRequestFailed  = errors.New("refund gateway request failed")

	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
