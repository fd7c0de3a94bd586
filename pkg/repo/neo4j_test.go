package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type mockResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }
func (m *mockResult) Err() error            { return m.err }

type call struct {
	cypher string
	params map[string]any
}

type mockRunner struct {
	result *mockResult
	err    error
	calls  []call
	closed int
}

func (m *mockRunner) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.calls = append(m.calls, call{cypher, params})
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &mockResult{}, nil
	}
	return m.result, nil
}

func (m *mockRunner) Close(context.Context) error { m.closed++; return nil }

type entity struct {
	ID   string
	Name string
}

func record(id, name string) *neo4j.Record {
	return &neo4j.Record{Values: []any{map[string]any{"id": id, "name": name}}, Keys: []string{"n"}}
}

func newTestRepo(r *mockRunner) *Neo4jRepo[entity, string] {
	return NewNeo4jRepo[entity, string](
		nil, "Entity",
		func(e entity) map[string]any { return map[string]any{"id": e.ID, "name": e.Name} },
		func(rec *neo4j.Record) (entity, error) {
			m, ok := rec.Values[0].(map[string]any)
			if !ok {
				return entity{}, errors.New("bad type")
			}
			return entity{ID: m["id"].(string), Name: m["name"].(string)}, nil
		},
		WithSessionFactory[entity, string](func(context.Context) Runner { return r }),
	)
}

func TestGet(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{record("1", "a")}}}
	got, err := newTestRepo(r).Get(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "a" {
		t.Fatalf("expected a, got %q", got.Name)
	}
	if r.closed != 1 {
		t.Fatalf("expected session closed once, got %d", r.closed)
	}
}

func TestGetNotFound(t *testing.T) {
	_, err := newTestRepo(&mockRunner{}).Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDefaultsLimit(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{record("1", "a"), record("2", "b")}}}
	items, err := newTestRepo(r).List(context.Background(), ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if r.calls[0].params["limit"] != 100 {
		t.Fatalf("expected default limit 100, got %v", r.calls[0].params["limit"])
	}
}

func TestUpsertMerges(t *testing.T) {
	r := &mockRunner{}
	if err := newTestRepo(r).Upsert(context.Background(), entity{ID: "7", Name: "x"}); err != nil {
		t.Fatal(err)
	}
	c := r.calls[0]
	if !strings.HasPrefix(c.cypher, "MERGE (n:Entity {id: $id})") {
		t.Fatalf("unexpected cypher %q", c.cypher)
	}
	if c.params["id"] != "7" {
		t.Fatalf("expected id 7, got %v", c.params["id"])
	}
}

func TestUpsertMissingID(t *testing.T) {
	repo := NewNeo4jRepo[entity, string](nil, "Entity",
		func(entity) map[string]any { return map[string]any{"name": "x"} }, nil,
		WithIDKey[entity, string]("uuid"),
		WithSessionFactory[entity, string](func(context.Context) Runner { return &mockRunner{} }))
	if err := repo.Upsert(context.Background(), entity{}); err == nil {
		t.Fatal("expected error for missing id property")
	}
}

func TestExecErrors(t *testing.T) {
	sentinel := errors.New("unavailable")
	if err := newTestRepo(&mockRunner{err: sentinel}).Exec(context.Background(), "RETURN 1", nil); !errors.Is(err, sentinel) {
		t.Fatalf("expected run error, got %v", err)
	}
	r := &mockRunner{result: &mockResult{err: sentinel}}
	if err := newTestRepo(r).Exec(context.Background(), "RETURN 1", nil); !errors.Is(err, sentinel) {
		t.Fatalf("expected result error, got %v", err)
	}
}
