// Package catalog projects canonical deals into Neo4j so downstream tooling
// can traverse deals by industry, state and source.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/pkg/repo"
)

// Node labels and relationship types.
const (
	LabelDeal     = "Deal"
	LabelIndustry = "Industry"
	LabelState    = "State"
	LabelSource   = "Source"

	RelInIndustry = "IN_INDUSTRY"
	RelLocatedIn  = "LOCATED_IN"
	RelListedOn   = "LISTED_ON"
)

// DealNode is the graph shape of a canonical deal.
type DealNode struct {
	ID              string `json:"id"`
	Headline        string `json:"headline,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	Industry        string `json:"industry,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	SourceID        string `json:"source_id"`
	SourceName      string `json:"source_name,omitempty"`
	SourceURL       string `json:"source_url,omitempty"`
	RevenueBand     string `json:"revenue_band,omitempty"`
	EBITDABand      string `json:"ebitda_band,omitempty"`
	AskingPrice     *int64 `json:"asking_price,omitempty"`
	DealType        string `json:"deal_type,omitempty"`
	DataConfidence  string `json:"data_confidence,omitempty"`
	ConfidenceScore int64  `json:"confidence_score"`
	IsPromoted      bool   `json:"is_promoted"`
	PromotedDate    string `json:"promoted_date,omitempty"`
	LastSeen        string `json:"last_seen,omitempty"`
}

// NodeFromDeal converts a canonical deal.
func NodeFromDeal(d domain.CanonicalDeal) DealNode {
	n := DealNode{
		ID:              d.ID.String(),
		Headline:        d.Headline,
		CompanyName:     d.CompanyName,
		City:            d.City,
		State:           d.State,
		SourceID:        d.SourceID,
		SourceName:      d.SourceName,
		SourceURL:       d.SourceURL,
		RevenueBand:     d.RevenueBand,
		EBITDABand:      d.EBITDABand,
		AskingPrice:     d.AskingPrice,
		DealType:        string(d.DealType),
		DataConfidence:  string(d.DataConfidence),
		ConfidenceScore: int64(d.ConfidenceScore),
		IsPromoted:      d.IsPromoted,
	}
	if d.IndustryTag != nil {
		n.Industry = string(*d.IndustryTag)
	}
	if d.PromotedDate != nil {
		n.PromotedDate = d.PromotedDate.String()
	}
	if !d.LastSeenAt.IsZero() {
		n.LastSeen = d.LastSeenAt.UTC().Format(time.RFC3339)
	}
	return n
}

func dealToMap(n DealNode) map[string]any {
	m := map[string]any{
		"id":               n.ID,
		"headline":         n.Headline,
		"company_name":     n.CompanyName,
		"industry":         n.Industry,
		"city":             n.City,
		"state":            n.State,
		"source_id":        n.SourceID,
		"source_name":      n.SourceName,
		"source_url":       n.SourceURL,
		"revenue_band":     n.RevenueBand,
		"ebitda_band":      n.EBITDABand,
		"asking_price":     nil,
		"deal_type":        n.DealType,
		"data_confidence":  n.DataConfidence,
		"confidence_score": n.ConfidenceScore,
		"is_promoted":      n.IsPromoted,
		"promoted_date":    n.PromotedDate,
		"last_seen":        n.LastSeen,
	}
	if n.AskingPrice != nil {
		m["asking_price"] = *n.AskingPrice
	}
	return m
}

func dealFromRecord(rec *neo4j.Record) (DealNode, error) {
	if len(rec.Values) == 0 {
		return DealNode{}, fmt.Errorf("catalog: empty record")
	}
	props, ok := rec.Values[0].(map[string]any)
	if !ok {
		if node, isNode := rec.Values[0].(neo4j.Node); isNode {
			props = node.Props
		} else {
			return DealNode{}, fmt.Errorf("catalog: unexpected record value %T", rec.Values[0])
		}
	}
	n := DealNode{
		ID:             str(props, "id"),
		Headline:       str(props, "headline"),
		CompanyName:    str(props, "company_name"),
		Industry:       str(props, "industry"),
		City:           str(props, "city"),
		State:          str(props, "state"),
		SourceID:       str(props, "source_id"),
		SourceName:     str(props, "source_name"),
		SourceURL:      str(props, "source_url"),
		RevenueBand:    str(props, "revenue_band"),
		EBITDABand:     str(props, "ebitda_band"),
		DealType:       str(props, "deal_type"),
		DataConfidence: str(props, "data_confidence"),
		PromotedDate:   str(props, "promoted_date"),
		LastSeen:       str(props, "last_seen"),
	}
	if v, ok := props["confidence_score"].(int64); ok {
		n.ConfidenceScore = v
	}
	if v, ok := props["asking_price"].(int64); ok {
		n.AskingPrice = &v
	}
	if v, ok := props["is_promoted"].(bool); ok {
		n.IsPromoted = v
	}
	return n, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

const linkCypher = `
MATCH (d:Deal {id: $id})
MERGE (s:Source {id: $source_id})
SET s.name = $source_name
MERGE (d)-[:LISTED_ON]->(s)
WITH d
OPTIONAL MATCH (d)-[old:IN_INDUSTRY|LOCATED_IN]->()
DELETE old
WITH DISTINCT d
FOREACH (_ IN CASE WHEN $industry = '' THEN [] ELSE [1] END |
	MERGE (i:Industry {name: $industry})
	MERGE (d)-[:IN_INDUSTRY]->(i))
FOREACH (_ IN CASE WHEN $state = '' THEN [] ELSE [1] END |
	MERGE (st:State {code: $state})
	MERGE (d)-[:LOCATED_IN]->(st))
`

var constraints = []string{
	"CREATE CONSTRAINT deal_id IF NOT EXISTS FOR (d:Deal) REQUIRE d.id IS UNIQUE",
	"CREATE CONSTRAINT industry_name IF NOT EXISTS FOR (i:Industry) REQUIRE i.name IS UNIQUE",
	"CREATE CONSTRAINT state_code IF NOT EXISTS FOR (s:State) REQUIRE s.code IS UNIQUE",
	"CREATE CONSTRAINT source_id IF NOT EXISTS FOR (s:Source) REQUIRE s.id IS UNIQUE",
}

// Graph writes and reads the deal projection.
type Graph struct {
	deals *repo.Neo4jRepo[DealNode, string]
}

// New returns a Graph backed by driver.
func New(driver neo4j.DriverWithContext) *Graph {
	return NewWithSessions(repo.DriverSessions(driver))
}

// NewWithSessions returns a Graph using the given session factory.
func NewWithSessions(open repo.SessionFactory) *Graph {
	return &Graph{
		deals: repo.NewNeo4jRepo[DealNode, string](nil, LabelDeal, dealToMap, dealFromRecord,
			repo.WithSessionFactory[DealNode, string](open)),
	}
}

// EnsureSchema creates the uniqueness constraints.
func (g *Graph) EnsureSchema(ctx context.Context) error {
	for _, c := range constraints {
		if err := g.deals.Exec(ctx, c, nil); err != nil {
			return fmt.Errorf("catalog: ensure schema: %w", err)
		}
	}
	return nil
}

// Project upserts the deal node and its industry, state and source edges.
func (g *Graph) Project(ctx context.Context, d domain.CanonicalDeal) error {
	n := NodeFromDeal(d)
	if err := g.deals.Upsert(ctx, n); err != nil {
		return fmt.Errorf("catalog: upsert deal %s: %w", n.ID, err)
	}
	err := g.deals.Exec(ctx, linkCypher, map[string]any{
		"id":          n.ID,
		"source_id":   n.SourceID,
		"source_name": n.SourceName,
		"industry":    n.Industry,
		"state":       n.State,
	})
	if err != nil {
		return fmt.Errorf("catalog: link deal %s: %w", n.ID, err)
	}
	return nil
}

// Deal returns one projected deal.
func (g *Graph) Deal(ctx context.Context, id string) (DealNode, error) {
	return g.deals.Get(ctx, id)
}

// Deals lists projected deals ordered by id.
func (g *Graph) Deals(ctx context.Context, offset, limit int) ([]DealNode, error) {
	return g.deals.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
}
