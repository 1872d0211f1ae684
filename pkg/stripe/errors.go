package stripe

import (
	"errors"
	"net"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// IsRetryable reports whether a failed provider call is worth repeating:
// network failures, provider-side API errors, rate limits and lock timeouts.
// Card and invalid request errors are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeAPI:
			return true
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return true
		case stripeErr.Code == stripe.ErrorCodeLockTimeout:
			return true
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// AsProviderError maps a provider failure onto PROVIDER_ERROR, passing the
// provider's type, code and message through as details.
func AsProviderError(err error, message string) *pkgerrors.Error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	details := map[string]any{}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		details["type"] = string(stripeErr.Type)
		if stripeErr.Code != "" {
			details["code"] = string(stripeErr.Code)
		}
		if stripeErr.Msg != "" {
			details["message"] = stripeErr.Msg
		}
	} else {
		details["message"] = err.Error()
	}
	return pkgerrors.Wrap(pkgerrors.CodeProvider, err, message).WithDetails(details)
}
