package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/stripe/stripe-go/v82"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"
	"github.com/stripe/stripe-go/v82/paymentmethod"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// StripeAPI is the subset of Stripe operations the provider needs,
// narrowed from the teacher's internal/billing/stripe.go StripeAPI
// interface so tests can substitute a fake without hitting the network.
type StripeAPI interface {
	GetCustomer(id string) (*stripe.Customer, error)
	CreateInvoice(params *stripe.InvoiceParams) (*stripe.Invoice, error)
	CreateInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
	FinalizeInvoice(id string, params *stripe.InvoiceFinalizeInvoiceParams) (*stripe.Invoice, error)
	PayInvoice(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error)
	ListPaymentMethods(customerID string) ([]*stripe.PaymentMethod, error)
}

// liveStripeAPI is the StripeAPI backed by the real Stripe client.
type liveStripeAPI struct{}

func (liveStripeAPI) GetCustomer(id string) (*stripe.Customer, error) {
	return stripecustomer.Get(id, nil)
}

func (liveStripeAPI) CreateInvoice(params *stripe.InvoiceParams) (*stripe.Invoice, error) {
	return invoice.New(params)
}

func (liveStripeAPI) CreateInvoiceItem(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error) {
	return invoiceitem.New(params)
}

func (liveStripeAPI) FinalizeInvoice(id string, params *stripe.InvoiceFinalizeInvoiceParams) (*stripe.Invoice, error) {
	return invoice.FinalizeInvoice(id, params)
}

func (liveStripeAPI) PayInvoice(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error) {
	return invoice.Pay(id, params)
}

func (liveStripeAPI) ListPaymentMethods(customerID string) ([]*stripe.PaymentMethod, error) {
	i := paymentmethod.List(&stripe.PaymentMethodListParams{Customer: stripe.String(customerID)})
	var out []*stripe.PaymentMethod
	for i.Next() {
		out = append(out, i.PaymentMethod())
	}
	return out, i.Err()
}

// StripeProvider is the Stripe variant of the payment adapter.
// customerID here is the Stripe customer id directly (callers resolve
// the mapping from our Customer.ID before invoking the provider) —
// mirrors the teacher's CreateCustomer(ownerID, email) metadata tagging
// where the Stripe customer id is the join key, not the wallet address.
type StripeProvider struct {
	api  StripeAPI
	db   *store.DB
	mock *MockMode
}

var _ Provider = (*StripeProvider)(nil)

func NewStripeProvider(apiKey string, db *store.DB, mock *MockMode) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{api: liveStripeAPI{}, db: db, mock: mock}
}

// NewStripeProviderWithAPI is used by tests to inject a fake StripeAPI.
func NewStripeProviderWithAPI(api StripeAPI, db *store.DB, mock *MockMode) *StripeProvider {
	return &StripeProvider{api: api, db: db, mock: mock}
}

func (p *StripeProvider) Kind() enum.ProviderKind { return enum.ProviderStripe }

func (p *StripeProvider) IsConfigured(ctx context.Context, customerID string) (bool, error) {
	pms, err := p.api.ListPaymentMethods(customerID)
	if err != nil {
		return false, nil // absent Stripe customer reads as unconfigured, not an error
	}
	return len(pms) > 0, nil
}

func (p *StripeProvider) CanPay(ctx context.Context, customerID string, amountCents int64) (bool, error) {
	return p.IsConfigured(ctx, customerID)
}

// idempotencyKey derives a stable per-(key, stage) Stripe idempotency
// key so a retried charge attempt never double-creates the same Stripe
// object across any of the four API calls (§4.4).
func idempotencyKey(key, stage string) string {
	sum := sha256.Sum256([]byte(key + ":" + stage))
	return "sealctl_" + hex.EncodeToString(sum[:16])
}

func (p *StripeProvider) Charge(ctx context.Context, customerID string, amountCents int64, invoiceID, description string) (ChargeResult, error) {
	if res, injected := applyFaultInjection(ctx, p.mock); injected {
		return res, nil
	}

	idemBase := invoiceID
	if idemBase == "" {
		return ChargeResult{}, errors.New("payment: stripe charge requires a non-empty invoiceID for idempotency")
	}

	invParams := &stripe.InvoiceParams{Customer: stripe.String(customerID)}
	invParams.SetIdempotencyKey(idempotencyKey(idemBase, "create_invoice"))
	sinv, err := p.api.CreateInvoice(invParams)
	if err != nil {
		return chargeResultFromStripeError(err), nil
	}

	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Invoice:     stripe.String(sinv.ID),
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	}
	itemParams.SetIdempotencyKey(idempotencyKey(idemBase, "create_item"))
	if _, err := p.api.CreateInvoiceItem(itemParams); err != nil {
		return chargeResultFromStripeError(err), nil
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{}
	finalizeParams.SetIdempotencyKey(idempotencyKey(idemBase, "finalize"))
	sinv, err = p.api.FinalizeInvoice(sinv.ID, finalizeParams)
	if err != nil {
		return chargeResultFromStripeError(err), nil
	}

	payParams := &stripe.InvoicePayParams{}
	payParams.SetIdempotencyKey(idempotencyKey(idemBase, "pay"))
	sinv, err = p.api.PayInvoice(sinv.ID, payParams)
	if err != nil {
		return chargeResultFromStripeError(err), nil
	}

	if sinv.Status == stripe.InvoiceStatusPaid {
		return ChargeResult{Success: true, ReferenceID: sinv.ID}, nil
	}
	return ChargeResult{
		Success:          false,
		ErrorCode:        enum.ErrRequiresAction,
		HostedInvoiceURL: sinv.HostedInvoiceURL,
	}, nil
}

func chargeResultFromStripeError(err error) ChargeResult {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case stripe.ErrorCodeCardDeclined:
			return ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false}
		case stripe.ErrorCodeAuthenticationRequired:
			return ChargeResult{Success: false, ErrorCode: enum.ErrRequiresAction, Retryable: false}
		}
		if serr.HTTPStatusCode >= 500 {
			return ChargeResult{Success: false, ErrorCode: enum.ErrTransientProvider, Retryable: true}
		}
	}
	return ChargeResult{Success: false, ErrorCode: enum.ErrTransientProvider, Retryable: true}
}

func (p *StripeProvider) GetInfo(ctx context.Context, customerID string) (*DisplayInfo, error) {
	pms, err := p.api.ListPaymentMethods(customerID)
	if err != nil {
		return &DisplayInfo{Kind: enum.ProviderStripe, Configured: false}, nil
	}
	info := &DisplayInfo{Kind: enum.ProviderStripe, Configured: len(pms) > 0}
	if len(pms) > 0 && pms[0].Card != nil {
		info.Last4 = pms[0].Card.Last4
	}
	return info, nil
}
