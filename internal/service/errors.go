package service

import (
	"github.com/hakotapp/hakot/internal/domain"
)

// Subscription errors
var (
	ErrAlreadySubscribed      = domain.Errorf(domain.ECONFLICT, "", "User already has an open subscription")
	ErrPlanUnavailable        = domain.Errorf(domain.ENOTFOUND, "", "Plan does not exist or is not open for subscription")
	ErrSubscriptionNotFound   = domain.Errorf(domain.ENOTFOUND, "", "Subscription not found")
	ErrNotSubscriptionOwner   = domain.Errorf(domain.EFORBIDDEN, "", "Subscription belongs to a different user")
	ErrSubscriptionNotPayable = domain.Errorf(domain.ECONFLICT, "", "Subscription is not awaiting payment")
)

// Payment errors
var (
	ErrGatewayUnavailable     = domain.Errorf(domain.EGATEWAY, "", "Payment gateway is unavailable, try again")
	ErrConfirmationMismatch   = domain.Errorf(domain.EPAYMENT, "", "Gateway does not report this payment as paid")
	ErrConfirmationInProgress = domain.Errorf(domain.ECONFLICT, "", "Another completion path is confirming this payment")
	ErrPaymentTimeout         = domain.Errorf(domain.ETIMEOUT, "", "Gave up waiting for the payment to complete")
	ErrPaymentNotFound        = domain.Errorf(domain.ENOTFOUND, "", "No payment found for this source")
	ErrWrongSubscription      = domain.Errorf(domain.EINVALID, "", "Source does not belong to this subscription")
)

// Ledger errors
var (
	ErrInvalidAmount      = domain.Errorf(domain.EINVALID, "", "Amount must be greater than zero")
	ErrDuplicateReference = domain.Errorf(domain.ECONFLICT, "", "Reference already recorded in the ledger")
)
