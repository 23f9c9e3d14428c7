package billing

import "github.com/suiftly/sealctl/internal/enum"

// Pricing maps a tier to its monthly price in USD cents. Kept as a
// plain map rather than a Stripe product/price lookup (contrast
// plans.go-style ListAvailablePlans in the teacher) because tier
// pricing here is a control-plane constant, not an operator-editable
// catalog.
type Pricing map[enum.Tier]int64

// DefaultPricing is the tier price table used when no override is
// configured.
var DefaultPricing = Pricing{
	enum.TierStarter:    0,
	enum.TierPro:        2900,
	enum.TierEnterprise: 9900,
}

func (p Pricing) priceCents(tier enum.Tier) int64 {
	if v, ok := p[tier]; ok {
		return v
	}
	return 0
}
