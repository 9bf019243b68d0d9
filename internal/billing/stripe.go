package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeProvider issues one-off percentage coupons through Stripe. Each
// discount_offer action gets its own coupon plus a human-readable promotion
// code the agent can paste into an email.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a Stripe-backed discount provider.
func NewStripeProvider(apiKey string) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) CreateDiscount(ctx context.Context, userID, contactID string, percentOff float64) (*Discount, error) {
	if percentOff <= 0 || percentOff > 100 {
		return nil, fmt.Errorf("percent off out of range: %.1f", percentOff)
	}

	couponParams := &stripe.CouponParams{
		PercentOff: stripe.Float64(percentOff),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
		Name:       stripe.String(fmt.Sprintf("Retention offer for %s", contactID)),
	}
	couponParams.Context = ctx
	couponParams.AddMetadata("user_id", userID)
	couponParams.AddMetadata("contact_id", contactID)

	cp, err := p.api.Coupons.New(couponParams)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	codeParams := &stripe.PromotionCodeParams{
		Coupon: stripe.String(cp.ID),
		Code:   stripe.String(promotionCode(contactID)),
	}
	codeParams.Context = ctx

	pc, err := p.api.PromotionCodes.New(codeParams)
	if err != nil {
		return nil, fmt.Errorf("create promotion code: %w", err)
	}

	return &Discount{
		Code:       pc.Code,
		PercentOff: percentOff,
		Provider:   "stripe",
	}, nil
}

// promotionCode derives a readable, collision-resistant code from the
// contact and the current time.
func promotionCode(contactID string) string {
	suffix := contactID
	if i := strings.IndexByte(suffix, '_'); i >= 0 {
		suffix = suffix[i+1:]
	}
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return strings.ToUpper(fmt.Sprintf("STAY%s%d", suffix, time.Now().Unix()%100000))
}
