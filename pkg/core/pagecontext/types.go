// Package pagecontext implements the DOM Model Extractor: it parses a raw
// HTML snapshot posted by the embedding snippet and builds a typed,
// frozen semantic model of the host page (pricing, features, FAQs,
// products, CTAs, structure, metadata).
package pagecontext

import "time"

// Rect is the viewport-relative bounding box the snippet measured for an
// element at extraction time. It is advisory only — by the time an action
// directive executes client-side, the real element may have moved.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementRef is a stable handle to a DOM node: a CSS selector computed at
// extraction time (id, else an nth-of-type chain from the nearest ancestor
// with an id), never a live handle. This is the concrete form of spec.md
// §9's "cache stable selectors plus per-use resolution" redesign, made the
// primary design here because the gateway process never holds a live DOM at
// all.
type ElementRef struct {
	Selector    string `json:"selector"`
	Tag         string `json:"tag"`
	BoundingBox Rect   `json:"boundingBox"`
}

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

type Section struct {
	ID          string `json:"id,omitempty"`
	Tag         string `json:"tag"`
	Heading     string `json:"heading,omitempty"`
	TextPreview string `json:"textPreview"`
}

type PricingCard struct {
	Plan       string     `json:"plan"`
	Price      string     `json:"price"`
	PriceValue *float64   `json:"priceValue,omitempty"`
	Currency   *string    `json:"currency,omitempty"`
	Period     *string    `json:"period,omitempty"`
	Features   []string   `json:"features"`
	Popular    bool       `json:"popular"`
	ElementRef ElementRef `json:"elementRef"`
}

type Feature struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ElementRef  ElementRef `json:"elementRef"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price,omitempty"`
	Image       string `json:"image,omitempty"`
}

type CTA struct {
	Text       string     `json:"text"`
	Href       string     `json:"href,omitempty"`
	Tag        string     `json:"tag"`
	ElementRef ElementRef `json:"elementRef"`
}

type Metadata struct {
	SiteName    string            `json:"siteName,omitempty"`
	Description string            `json:"description,omitempty"`
	OGTags      map[string]string `json:"ogTags,omitempty"`
	Schema      []string          `json:"schema,omitempty"`
}

type Content struct {
	Pricing  []PricingCard `json:"pricing"`
	Features []Feature     `json:"features"`
	FAQs     []FAQ         `json:"faqs"`
	Products []Product     `json:"products"`
	CTAs     []CTA         `json:"ctas"`
	Metadata Metadata      `json:"metadata"`
}

// PageContext is the frozen semantic snapshot produced by Extract. Once
// built it is never mutated; a fresh snapshot replaces it wholesale.
type PageContext struct {
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	CurrentSection string    `json:"currentSection,omitempty"`
	ScrollPosition float64   `json:"scrollPosition"`
	Structure      []Heading `json:"structure"`
	Sections       []Section `json:"sections"`
	Content        Content   `json:"content"`
	Keywords       []string  `json:"keywords"`
	Summary        string    `json:"summary"`
	Links          []string  `json:"links"`
	ExtractedAt    time.Time `json:"extractedAt"`
	ExtractionTime time.Duration `json:"extractionTime"`
}

// Input is what the snippet POSTs to /v1/page-context: the raw HTML
// fragment it captured (typically the <main> subtree) plus the few signals
// only a real browser can produce.
type Input struct {
	URL                string   `json:"url"`
	HTML               string   `json:"html"`
	ScrollPosition     float64  `json:"scroll"`
	ViewportHeight     float64  `json:"viewportHeight"`
	ViewportWidth      float64  `json:"viewportWidth"`
	InvisibleSelectors []string `json:"invisibleSelectors"`
}

const (
	maxFeatures = 50 // deduped by name; display-layer caps further per-card lists
	maxFAQs     = 20
	maxProducts = 20
	maxCTAs     = 10
	maxKeywords = 15
	maxSummary  = 200
)
