package neo4j

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/resilience"
)

const (
	serviceName     = "neo4j"
	unlabeledNodes  = "Unlabeled"
	relationsCypher = `
MATCH (n)-[r]->(m)
WHERE toLower(n.name) CONTAINS toLower($keyword)
   OR toLower(m.name) CONTAINS toLower($keyword)
RETURN n.name AS source, type(r) AS relation, m.name AS target
LIMIT $limit`
	entitiesCypher = `
MATCH (s:%s)
WHERE toLower(s.name) CONTAINS toLower($keyword)
RETURN s.name AS name, s.description AS description
LIMIT $limit`
	nodeCountsCypher         = `MATCH (n) RETURN labels(n) AS labels, count(n) AS count`
	relationshipCountsCypher = `MATCH ()-[r]->() RETURN type(r) AS type, count(r) AS count`
)

// Labels cannot be bound as parameters, so they are restricted to plain identifiers.
var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

type queryFunc func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store reads the crops/schemes/policies knowledge graph.
type Store struct {
	driver neo4j.DriverWithContext
	query  queryFunc
	exec   *resilience.Executor
}

// Open connects and verifies the server is reachable. The caller owns Close.
func Open(ctx context.Context, cfg Config, exec *resilience.Executor) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "verify neo4j connectivity", err)
	}

	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if cfg.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}
	query := func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
		res, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, opts...)
		if err != nil {
			return nil, err
		}
		return res.Records, nil
	}
	return &Store{driver: driver, query: query, exec: exec}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Store) FindRelations(ctx context.Context, keyword string, limit int) ([]domain.GraphFact, error) {
	records, err := s.run(ctx, "find_relations", relationsCypher, map[string]any{
		"keyword": keyword,
		"limit":   int64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.GraphFact, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.GraphFact{
			Source:   recordString(rec, "source"),
			Relation: recordString(rec, "relation"),
			Target:   recordString(rec, "target"),
		})
	}
	return out, nil
}

func (s *Store) FindEntities(ctx context.Context, label, keyword string, limit int) ([]domain.EntityDescription, error) {
	if !labelPattern.MatchString(label) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "find entities", fmt.Errorf("label %q", label))
	}
	records, err := s.run(ctx, "find_entities", fmt.Sprintf(entitiesCypher, "`"+label+"`"), map[string]any{
		"keyword": keyword,
		"limit":   int64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.EntityDescription, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.EntityDescription{
			Name:        recordString(rec, "name"),
			Description: recordString(rec, "description"),
		})
	}
	return out, nil
}

// Stats counts nodes by their first label and relationships by type.
func (s *Store) Stats(ctx context.Context) (domain.GraphStats, error) {
	stats := domain.GraphStats{
		Nodes:         map[string]int64{},
		Relationships: map[string]int64{},
	}

	nodeRecords, err := s.run(ctx, "node_counts", nodeCountsCypher, nil)
	if err != nil {
		return domain.GraphStats{}, err
	}
	for _, rec := range nodeRecords {
		label := firstLabel(rec)
		n := recordInt(rec, "count")
		stats.Nodes[label] += n
		stats.TotalNodes += n
	}

	relRecords, err := s.run(ctx, "relationship_counts", relationshipCountsCypher, nil)
	if err != nil {
		return domain.GraphStats{}, err
	}
	for _, rec := range relRecords {
		n := recordInt(rec, "count")
		stats.Relationships[recordString(rec, "type")] += n
		stats.TotalRelationships += n
	}
	return stats, nil
}

func (s *Store) run(ctx context.Context, operation, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if s == nil || s.query == nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, operation, errors.New("neo4j store is not connected"))
	}
	records, err := resilience.Call(ctx, s.exec, serviceName+"."+operation, func(callCtx context.Context) ([]*neo4j.Record, error) {
		return s.query(callCtx, cypher, params)
	}, classifyGraphError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, serviceName+" "+operation,
			resilience.WrapTemporary(serviceName+" "+operation, err, classifyGraphError))
	}
	return records, nil
}

// classifyGraphError retries connectivity and driver-retryable failures.
// Cypher and auth errors are permanent and do not trip the breaker.
func classifyGraphError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var attemptErr *resilience.AttemptTimeoutError
		if errors.As(err, &attemptErr) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if neo4j.IsNeo4jError(err) {
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyRemoteError(err)
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func firstLabel(rec *neo4j.Record) string {
	v, _ := rec.Get("labels")
	var labels []string
	switch ls := v.(type) {
	case []any:
		for _, l := range ls {
			if s, ok := l.(string); ok {
				labels = append(labels, s)
			}
		}
	case []string:
		labels = ls
	}
	if len(labels) == 0 {
		return unlabeledNodes
	}
	// Server label order is not guaranteed; pick deterministically.
	sort.Strings(labels)
	return labels[0]
}
