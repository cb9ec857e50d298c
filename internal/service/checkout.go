package service

import (
	"context"
	"fmt"
	"net/url"

	"clubledger-backend/internal/domain"

	"github.com/google/uuid"
)

// stubCheckoutGateway stands in for the payment provider. It mints an
// external reference per payment and points the parent at a local
// confirmation page; the provider's webhook later settles the payment.
type stubCheckoutGateway struct {
	checkoutURL string
}

func NewStubCheckoutGateway(checkoutURL string) CheckoutGateway {
	return &stubCheckoutGateway{checkoutURL: checkoutURL}
}

func (g *stubCheckoutGateway) CreateCheckout(ctx context.Context, p *domain.Payment, description, returnURL string) (*Checkout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}

	ref := "ext_" + uuid.NewString()
	confirmation := g.checkoutURL
	if u, err := url.Parse(g.checkoutURL); err == nil && g.checkoutURL != "" {
		q := u.Query()
		q.Set("ref", ref)
		q.Set("amount", fmt.Sprintf("%d.00", p.Amount))
		q.Set("currency", p.Currency)
		q.Set("description", description)
		if returnURL != "" {
			q.Set("return_url", returnURL)
		}
		u.RawQuery = q.Encode()
		confirmation = u.String()
	}
	return &Checkout{ExternalReference: ref, ConfirmationURL: confirmation}, nil
}
