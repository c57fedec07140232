// Package billing wires the closing technique's recommended plan (C10,
// pkg/core/sales) to a real Stripe Checkout Session, so a closing
// ClosingAction can carry a clickable checkout_url instead of just a
// "navigate to pricing" directive. Plan-name-to-price-ID mapping follows
// testforge-hq-testforge/internal/billing's PlanConfig table shape
// (_examples/testforge-hq-testforge/internal/billing/subscription.go),
// reduced to the one field this gateway needs and backed by the real
// stripe-go SDK rather than testforge's hand-rolled HTTP client.
package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// PlanPricing maps a PageContext pricing-card plan name (case-insensitive)
// to the Stripe Price ID an operator configured for it via the operator
// console (pkg/gateway/operator).
type PlanPricing map[string]string

func (p PlanPricing) lookup(planName string) (string, bool) {
	for name, priceID := range p {
		if strings.EqualFold(name, planName) {
			return priceID, true
		}
	}
	return "", false
}

// Config holds the Stripe secret key and the checkout redirect URLs, loaded
// from pkg/gateway/config the same way every other backend in this gateway
// is constructed: explicit fields, no package-level globals.
type Config struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// Client creates Stripe Checkout Sessions for the recommended plan a
// closing technique names.
type Client struct {
	sc         *stripe.Client
	successURL string
	cancelURL  string
}

func New(cfg Config) *Client {
	return &Client{
		sc:         stripe.NewClient(cfg.SecretKey),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

// Enabled reports whether a secret key was configured; operators who never
// set SALESAGENT_STRIPE_SECRET_KEY simply don't get checkout_url actions.
func (c *Client) Enabled() bool {
	return c != nil && c.sc != nil
}

// CreateCheckoutLink resolves planName against pricing and creates a
// one-item subscription Checkout Session, returning the hosted URL the
// gateway attaches to the closing plan's actions (spec.md §4.10's "actions
// always include navigate->pricing, pulse->signup button" list, extended
// with this [NEW] checkout_url entry per SPEC_FULL's DOMAIN STACK wiring).
func (c *Client) CreateCheckoutLink(ctx context.Context, pricing PlanPricing, planName, customerEmail string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("billing: stripe secret key not configured")
	}
	priceID, ok := pricing.lookup(planName)
	if !ok {
		return "", fmt.Errorf("billing: no stripe price configured for plan %q", planName)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if strings.TrimSpace(customerEmail) != "" {
		params.CustomerEmail = stripe.String(customerEmail)
	}

	session, err := c.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	return session.URL, nil
}
