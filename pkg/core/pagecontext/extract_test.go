package pagecontext

import (
	"strings"
	"testing"
)

const pricingHTML = `
<html><head><title>Acme | Sales Software</title>
<meta property="og:site_name" content="Acme">
<meta property="og:description" content="Sell faster with Acme">
</head>
<body>
<section id="pricing" class="pricing-section">
  <h2>Pricing</h2>
  <div class="card">
    <h4>Starter</h4>
    <p>$49/mo</p>
    <ul><li>5 seats</li><li>Basic support</li></ul>
  </div>
  <div class="card">
    <h4>Pro</h4>
    <p>$199/mo</p>
    <ul><li>50 seats</li><li>Priority support</li></ul>
  </div>
  <div class="card">
    <h4>Enterprise</h4>
    <p>Custom</p>
    <ul><li>Unlimited seats</li><li>Dedicated support</li></ul>
  </div>
</section>
<section id="features">
  <h2>Features</h2>
  <div><h3>Automation</h3><p>Automate your entire sales pipeline end to end.</p></div>
  <div><h3>Reporting</h3><p>See every deal's health at a glance, every day.</p></div>
  <div><h3>Integrations</h3><p>Connect to the tools your team already uses daily.</p></div>
</section>
<button class="btn-primary">Get Started</button>
</body></html>`

func TestExtract_PricingCards(t *testing.T) {
	ctx, err := Extract(Input{URL: "https://example.com", HTML: pricingHTML})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(ctx.Content.Pricing) != 3 {
		t.Fatalf("expected 3 pricing cards, got %d: %+v", len(ctx.Content.Pricing), ctx.Content.Pricing)
	}
	names := map[string]PricingCard{}
	for _, c := range ctx.Content.Pricing {
		names[c.Plan] = c
	}
	pro, ok := names["Pro"]
	if !ok {
		t.Fatalf("expected a Pro card, got %+v", names)
	}
	if pro.PriceValue == nil || *pro.PriceValue != 199 {
		t.Fatalf("expected Pro priceValue 199, got %+v", pro.PriceValue)
	}
	ent, ok := names["Enterprise"]
	if !ok {
		t.Fatalf("expected an Enterprise card")
	}
	if ent.Price != "Custom" || ent.PriceValue != nil {
		t.Fatalf("expected Enterprise to use the Custom sentinel, got %+v", ent)
	}
}

func TestExtract_Features(t *testing.T) {
	ctx, err := Extract(Input{URL: "https://example.com", HTML: pricingHTML})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(ctx.Content.Features) != 3 {
		t.Fatalf("expected 3 features, got %d: %+v", len(ctx.Content.Features), ctx.Content.Features)
	}
}

func TestExtract_FewerThanThreeStructuredChildrenIsNotFeatureList(t *testing.T) {
	html := `<html><body><div><div><h3>Solo</h3><p>Just one card here, nothing else around it.</p></div></div></body></html>`
	ctx, err := Extract(Input{URL: "https://example.com", HTML: html})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(ctx.Content.Features) != 0 {
		t.Fatalf("expected no features classified, got %+v", ctx.Content.Features)
	}
}

func TestExtract_MalformedMarkupNeverFails(t *testing.T) {
	ctx, err := Extract(Input{URL: "https://example.com", HTML: "<div><span>unclosed"})
	if err != nil {
		t.Fatalf("Extract must never return an error for malformed markup, got %v", err)
	}
	if ctx == nil {
		t.Fatal("expected a non-nil context even for malformed markup")
	}
}

func TestExtract_CTAs(t *testing.T) {
	ctx, err := Extract(Input{URL: "https://example.com", HTML: pricingHTML})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	found := false
	for _, c := range ctx.Content.CTAs {
		if strings.EqualFold(c.Text, "Get Started") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Get Started CTA, got %+v", ctx.Content.CTAs)
	}
}

func TestExtract_Metadata(t *testing.T) {
	ctx, err := Extract(Input{URL: "https://example.com", HTML: pricingHTML})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if ctx.Content.Metadata.SiteName != "Acme" {
		t.Fatalf("expected site name Acme, got %q", ctx.Content.Metadata.SiteName)
	}
	if ctx.Content.Metadata.Description == "" {
		t.Fatalf("expected a description to be extracted")
	}
}
