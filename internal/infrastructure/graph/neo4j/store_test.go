package neo4j

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

type recordedQuery struct {
	cypher string
	params map[string]any
}

func fakeStore(results map[string][]*neo4j.Record, err error) (*Store, *[]recordedQuery) {
	var calls []recordedQuery
	return &Store{query: func(_ context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
		calls = append(calls, recordedQuery{cypher: cypher, params: params})
		if err != nil {
			return nil, err
		}
		for marker, recs := range results {
			if strings.Contains(cypher, marker) {
				return recs, nil
			}
		}
		return nil, nil
	}}, &calls
}

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func TestFindRelationsBindsKeywordAsParameter(t *testing.T) {
	keyword := "rice') DETACH DELETE n //"
	store, calls := fakeStore(map[string][]*neo4j.Record{
		"type(r)": {record([]string{"source", "relation", "target"}, "Rice", "COVERED_BY", "PMFBY")},
	}, nil)

	facts, err := store.FindRelations(context.Background(), keyword, 10)
	if err != nil {
		t.Fatalf("FindRelations() error = %v", err)
	}
	if len(facts) != 1 || facts[0] != (domain.GraphFact{Source: "Rice", Relation: "COVERED_BY", Target: "PMFBY"}) {
		t.Fatalf("unexpected facts: %+v", facts)
	}
	got := (*calls)[0]
	if strings.Contains(got.cypher, "DETACH") {
		t.Fatalf("keyword leaked into cypher text: %s", got.cypher)
	}
	if got.params["keyword"] != keyword || got.params["limit"] != int64(10) {
		t.Fatalf("unexpected params: %+v", got.params)
	}
}

func TestFindEntitiesRejectsUnsafeLabel(t *testing.T) {
	store, calls := fakeStore(nil, nil)
	_, err := store.FindEntities(context.Background(), "Scheme) MATCH (x", "kisan", 3)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("no query should run for an invalid label")
	}
}

func TestFindEntitiesMapsNilDescription(t *testing.T) {
	store, _ := fakeStore(map[string][]*neo4j.Record{
		"s.description": {record([]string{"name", "description"}, "PM-KISAN", nil)},
	}, nil)

	got, err := store.FindEntities(context.Background(), "Scheme", "kisan", 3)
	if err != nil {
		t.Fatalf("FindEntities() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "PM-KISAN" || got[0].Description != "" {
		t.Fatalf("unexpected entities: %+v", got)
	}
}

func TestStatsAggregatesCounts(t *testing.T) {
	store, _ := fakeStore(map[string][]*neo4j.Record{
		"labels(n)": {
			record([]string{"labels", "count"}, []any{"Commodity"}, int64(4)),
			record([]string{"labels", "count"}, []any{"Scheme"}, int64(3)),
			record([]string{"labels", "count"}, []any{}, int64(1)),
		},
		"type(r) AS type": {
			record([]string{"type", "count"}, "COVERED_BY", int64(5)),
			record([]string{"type", "count"}, "HAS_SUBSIDY", int64(2)),
		},
	}, nil)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalNodes != 8 || stats.TotalRelationships != 7 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.Nodes["Commodity"] != 4 || stats.Nodes[unlabeledNodes] != 1 || stats.Relationships["COVERED_BY"] != 5 {
		t.Fatalf("unexpected breakdown: %+v", stats)
	}
}

func TestQueryFailureIsBackendUnavailable(t *testing.T) {
	store, _ := fakeStore(nil, errors.New("connection refused"))
	_, err := store.FindRelations(context.Background(), "rice", 10)
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestNilStoreIsBackendUnavailable(t *testing.T) {
	var store *Store
	if _, err := store.Stats(context.Background()); !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestClassifyGraphError(t *testing.T) {
	if c := classifyGraphError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried: %+v", c)
	}
	if c := classifyGraphError(&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}); c.Retryable || c.RecordFailure {
		t.Fatalf("syntax error must be permanent: %+v", c)
	}
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if c := classifyGraphError(dialErr); !c.Retryable || !c.RecordFailure {
		t.Fatalf("dial error must be retried: %+v", c)
	}
}
