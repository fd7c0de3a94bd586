package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner is the part of a neo4j session the repository uses.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFactory opens a Runner. Tests substitute one to avoid a server.
type SessionFactory func(ctx context.Context) Runner

// Neo4jRepo stores T as nodes with a single label, keyed by an id property.
type Neo4jRepo[T any, ID comparable] struct {
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	open       SessionFactory
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the id property name (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithSessionFactory replaces the driver-backed session opener.
func WithSessionFactory[T any, ID comparable](f SessionFactory) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.open = f }
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// NewNeo4jRepo creates a repository for nodes labelled label. fromRecord
// receives records whose first value is the node's property map.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
		open:       DriverSessions(driver),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DriverSessions opens write sessions on driver.
func DriverSessions(driver neo4j.DriverWithContext) SessionFactory {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})}
	}
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN properties(n) AS n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, fmt.Errorf("repo: get %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return zero, fmt.Errorf("repo: get %s: %w", r.label, err)
		}
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(res.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN properties(n) AS n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"offset": opts.Offset, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}

	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, res.Err()
}

// Upsert merges the node on its id and overwrites the mapped properties.
func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) error {
	props := r.toMap(entity)
	id, ok := props[r.idKey]
	if !ok {
		return fmt.Errorf("repo: upsert %s: missing %s property", r.label, r.idKey)
	}
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props", r.label, r.idKey)
	return r.Exec(ctx, cypher, map[string]any{"id": id, "props": props})
}

// Exec runs a write statement in its own session and drains the result.
func (r *Neo4jRepo[T, ID]) Exec(ctx context.Context, cypher string, params map[string]any) error {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return fmt.Errorf("repo: exec on %s: %w", r.label, err)
	}
	for res.Next(ctx) {
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("repo: exec on %s: %w", r.label, err)
	}
	return nil
}
