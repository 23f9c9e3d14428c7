package billing

import (
	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/payment"
	"github.com/suiftly/sealctl/internal/store"
)

// cancellationGraceDays is the window, in days, between a paid cancellation
// reaching its scheduled date and the service instance resetting to
// not_provisioned (§4.5.2).
const cancellationGraceDays = 7

// Engine orchestrates the subscription, invoice, and reconciliation
// lifecycle over a customer-ordered payment.Provider chain.
type Engine struct {
	db      *store.DB
	clock   clock.Clock
	chain   []payment.Provider
	pricing Pricing
}

// NewEngine builds a billing Engine. chain is the provider dispatch
// order (§4.5.4) — callers typically pass [escrow, stripe, paypal] or
// a customer-specific ordering resolved upstream.
func NewEngine(db *store.DB, clk clock.Clock, chain []payment.Provider, pricing Pricing) *Engine {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Engine{db: db, clock: clk, chain: chain, pricing: pricing}
}
