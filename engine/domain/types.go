// Package domain defines the core listing types shared by the ingestion,
// normalization and promotion stages.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// IndustryTag is the closed set of industries the catalog accepts.
type IndustryTag string

const (
	IndustryHVAC       IndustryTag = "HVAC"
	IndustryPlumbing   IndustryTag = "Plumbing"
	IndustryElectrical IndustryTag = "Electrical"
)

// IndustryTags lists the allowed tags in canonical order. Classification ties
// resolve to the earlier entry.
var IndustryTags = []IndustryTag{IndustryHVAC, IndustryPlumbing, IndustryElectrical}

// Allowed reports whether t is one of the catalog tags.
func (t IndustryTag) Allowed() bool {
	for _, a := range IndustryTags {
		if t == a {
			return true
		}
	}
	return false
}

// DealType describes how the business is being sold.
type DealType string

const (
	DealAsset   DealType = "asset"
	DealStock   DealType = "stock"
	DealUnknown DealType = "unknown"
)

// DataConfidence is the coarse label derived from the confidence score.
type DataConfidence string

const (
	ConfidenceHigh   DataConfidence = "high"
	ConfidenceMedium DataConfidence = "medium"
	ConfidenceLow    DataConfidence = "low"
)

// ConfidenceLabel maps a 0-100 score to its label.
func ConfidenceLabel(score int) DataConfidence {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 45:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RawStatus is the change-tracking status of a raw listing.
type RawStatus string

const (
	RawActive  RawStatus = "active"
	RawChanged RawStatus = "changed"
)

// Source is an external listing source. The core only reads it, apart from
// advancing LastCrawledAt.
type Source struct {
	ID                 string     `json:"id" yaml:"id"`
	Name               string     `json:"name" yaml:"name"`
	ParserKey          string     `json:"parser_key" yaml:"parser"`
	EntryURL           string     `json:"entry_url" yaml:"url"`
	CrawlIntervalMins  int        `json:"crawl_interval_minutes" yaml:"crawl_interval_minutes"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	Enabled            bool       `json:"enabled" yaml:"enabled"`
	LastCrawledAt      *time.Time `json:"last_crawled_at,omitempty" yaml:"-"`
}

// Due reports whether the source should be crawled at now.
func (s Source) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastCrawledAt == nil || s.CrawlIntervalMins <= 0 {
		return true
	}
	return !now.Before(s.LastCrawledAt.Add(time.Duration(s.CrawlIntervalMins) * time.Minute))
}

// Stub is an index-level reference to a listing detail page.
type Stub struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	DateHint     string `json:"date_hint,omitempty"`
	LocationHint string `json:"location_hint,omitempty"`
	PriceHint    string `json:"price_hint,omitempty"`
}

// ExtractedFields holds what a parser could read off a detail page. Every
// field is text-evidenced; absent values stay empty.
type ExtractedFields struct {
	Headline      string   `json:"headline,omitempty"`
	CompanyName   string   `json:"company_name,omitempty"`
	City          string   `json:"city,omitempty"`
	State         string   `json:"state,omitempty"`
	FinancialText []string `json:"financial_text,omitempty"`
	AskingPrice   *int64   `json:"asking_price,omitempty"`
	TeaserPDFURL  string   `json:"teaser_pdf_url,omitempty"`
	IndustryTerms []string `json:"industry_terms,omitempty"`
	DealTypeTerms []string `json:"deal_type_terms,omitempty"`
	TextSample    string   `json:"text_sample,omitempty"`
}

// RawPayload is the JSON document stored on a raw listing.
type RawPayload struct {
	Stub   Stub             `json:"stub"`
	Fields *ExtractedFields `json:"fields,omitempty"`
}

// RawListing is one row per distinct listing URL ever seen under a source.
type RawListing struct {
	ID             uuid.UUID
	SourceID       string
	URL            string
	Title          string
	Payload        RawPayload
	Checksum       string
	Status         RawStatus
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	LastFetchError string
}

// Candidate is the normalizer output for one listing, before promotion.
type Candidate struct {
	SourceID           string
	SourceName         string
	SourceURL          string
	CompanyName        string
	Headline           string
	IndustryTag        *IndustryTag
	IndustryConfidence int
	City               string
	State              string
	RevenueMin         *int64
	RevenueMax         *int64
	EBITDAMin          *int64
	EBITDAMax          *int64
	RevenueBand        string
	EBITDABand         string
	AskingPrice        *int64
	DealType           DealType
	HasTeaserPDF       bool
	TeaserPDFURL       string
	TextSample         string
	ConfidenceScore    int
	DataConfidence     DataConfidence
	PublishedAt        *time.Time
}

// HasFinancials reports whether any revenue, EBITDA or asking price figure was found.
func (c Candidate) HasFinancials() bool {
	return c.RevenueMin != nil || c.RevenueMax != nil ||
		c.EBITDAMin != nil || c.EBITDAMax != nil ||
		c.AskingPrice != nil
}

// CanonicalDeal is a row of the canonical catalog.
type CanonicalDeal struct {
	ID                 uuid.UUID      `json:"id"`
	RawListingID       uuid.UUID      `json:"raw_listing_id"`
	SourceID           string         `json:"source_id"`
	CompanyName        string         `json:"company_name,omitempty"`
	Headline           string         `json:"headline,omitempty"`
	IndustryTag        *IndustryTag   `json:"industry_tag"`
	IndustryConfidence int            `json:"industry_confidence"`
	City               string         `json:"city,omitempty"`
	State              string         `json:"state,omitempty"`
	RevenueMin         *int64         `json:"revenue_min,omitempty"`
	RevenueMax         *int64         `json:"revenue_max,omitempty"`
	EBITDAMin          *int64         `json:"ebitda_min,omitempty"`
	EBITDAMax          *int64         `json:"ebitda_max,omitempty"`
	RevenueBand        string         `json:"revenue_band,omitempty"`
	EBITDABand         string         `json:"ebitda_band,omitempty"`
	AskingPrice        *int64         `json:"asking_price,omitempty"`
	DealType           DealType       `json:"deal_type"`
	HasTeaserPDF       bool           `json:"has_teaser_pdf"`
	TeaserPDFURL       string         `json:"teaser_pdf_url,omitempty"`
	SourceName         string         `json:"source_name"`
	SourceURL          string         `json:"source_url"`
	DataConfidence     DataConfidence `json:"data_confidence"`
	ConfidenceScore    int            `json:"confidence_score"`
	FirstSeenAt        time.Time      `json:"first_seen_at"`
	LastSeenAt         time.Time      `json:"last_seen_at"`
	PublishedAt        *time.Time     `json:"published_at,omitempty"`
	IsPromoted         bool           `json:"is_promoted"`
	PromotedDate       *Day           `json:"promoted_date,omitempty"`
	IsNewToday         bool           `json:"is_new_today"`
}

// ApplyCandidate copies the descriptive fields of c onto d. Tag, promotion
// state and timestamps are left to the caller.
func (d *CanonicalDeal) ApplyCandidate(c Candidate) {
	d.SourceID = c.SourceID
	d.SourceName = c.SourceName
	d.SourceURL = c.SourceURL
	d.CompanyName = c.CompanyName
	d.Headline = c.Headline
	d.City = c.City
	d.State = c.State
	d.RevenueMin, d.RevenueMax = c.RevenueMin, c.RevenueMax
	d.EBITDAMin, d.EBITDAMax = c.EBITDAMin, c.EBITDAMax
	d.RevenueBand = c.RevenueBand
	d.EBITDABand = c.EBITDABand
	d.AskingPrice = c.AskingPrice
	d.DealType = c.DealType
	d.HasTeaserPDF = c.HasTeaserPDF
	d.TeaserPDFURL = c.TeaserPDFURL
	d.ConfidenceScore = c.ConfidenceScore
	d.DataConfidence = c.DataConfidence
	d.PublishedAt = c.PublishedAt
}

// DailyCap tracks promotions for one civil day.
type DailyCap struct {
	Day  Day `json:"day"`
	Cap  int `json:"cap"`
	Used int `json:"used"`
}

// Remaining returns the number of promotions still available.
func (c DailyCap) Remaining() int {
	if c.Used >= c.Cap {
		return 0
	}
	return c.Cap - c.Used
}
