// Package events publishes catalog and run events on NATS.
package events

import (
	"context"
	"time"

	"github.com/WessleyAI/dealflow/engine/catalog"
	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/pkg/natsutil"
)

// Subjects.
const (
	SubjectDealPromoted = "dealflow.deals.promoted"
	SubjectDealUpdated  = "dealflow.deals.updated"
	SubjectRunCompleted = "dealflow.runs.completed"
	SubjectAll          = "dealflow.>"
)

// DealEvent is published when a deal is promoted or refreshed.
type DealEvent struct {
	Deal       catalog.DealNode `json:"deal"`
	RawListing string           `json:"raw_listing_id"`
	Promoted   bool             `json:"newly_promoted"`
	At         time.Time        `json:"at"`
}

// Publisher sends pipeline events. The zero value and a nil *Publisher
// discard everything.
type Publisher struct {
	conn natsutil.Publisher
	now  func() time.Time
}

// NewPublisher publishes through conn.
func NewPublisher(conn natsutil.Publisher) *Publisher {
	return &Publisher{conn: conn, now: time.Now}
}

func (p *Publisher) enabled() bool { return p != nil && p.conn != nil }

// DealPromoted announces a deal that entered the catalog this run, on either
// the insert or the update path.
func (p *Publisher) DealPromoted(ctx context.Context, d domain.CanonicalDeal) error {
	return p.deal(ctx, SubjectDealPromoted, d, true)
}

// DealUpdated announces a refresh of an existing catalog row.
func (p *Publisher) DealUpdated(ctx context.Context, d domain.CanonicalDeal) error {
	return p.deal(ctx, SubjectDealUpdated, d, false)
}

func (p *Publisher) deal(ctx context.Context, subject string, d domain.CanonicalDeal, promoted bool) error {
	if !p.enabled() {
		return nil
	}
	return natsutil.Publish(ctx, p.conn, subject, DealEvent{
		Deal:       catalog.NodeFromDeal(d),
		RawListing: d.RawListingID.String(),
		Promoted:   promoted,
		At:         p.now().UTC(),
	})
}

// RunCompleted publishes the final run summary.
func (p *Publisher) RunCompleted(ctx context.Context, s domain.RunSummary) error {
	if !p.enabled() {
		return nil
	}
	return natsutil.Publish(ctx, p.conn, SubjectRunCompleted, s)
}
