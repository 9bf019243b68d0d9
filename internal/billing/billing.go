// Package billing integrates payment-provider side effects triggered by
// recovery actions, currently discount coupons for discount_offer actions.
package billing

import (
	"context"
	"errors"
)

// ErrBillingDisabled is returned by the noop provider.
var ErrBillingDisabled = errors.New("billing is not configured")

// Discount is a provider-issued discount a user can forward to a contact.
type Discount struct {
	Code       string  `json:"code"`
	PercentOff float64 `json:"percentOff"`
	Provider   string  `json:"provider"`
}

// DiscountProvider issues discount codes. Failures are degraded to a log
// line by callers; a recovery action is never lost because the billing
// provider is down.
type DiscountProvider interface {
	CreateDiscount(ctx context.Context, userID, contactID string, percentOff float64) (*Discount, error)
}

// NoopProvider is used when no billing backend is configured.
type NoopProvider struct{}

func (NoopProvider) CreateDiscount(ctx context.Context, userID, contactID string, percentOff float64) (*Discount, error) {
	return nil, ErrBillingDisabled
}
