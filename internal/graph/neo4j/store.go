// Package neo4jgraph stores the content graph in Neo4j.
package neo4jgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/graph"
)

const (
	schemaConstraint = `CREATE CONSTRAINT content_id_unique IF NOT EXISTS FOR (n:Content) REQUIRE n.id IS UNIQUE`
	schemaTypeIndex  = `CREATE INDEX content_type IF NOT EXISTS FOR (n:Content) ON (n.type)`
	schemaURLIndex   = `CREATE INDEX content_url IF NOT EXISTS FOR (n:Content) ON (n.url)`

	upsertNodes = `UNWIND $rows AS row
MERGE (n:Content {id: row.id})
SET n.text = row.text, n.type = row.type, n.url = row.url`

	linkSections = `UNWIND $headings AS h
MATCH (a:Content {id: h.id})
WHERE size(a.text) > $minLength
MATCH (b:Content)
WHERE b.url = a.url AND b.type IN $bodyTypes AND b.id <> a.id AND b.text CONTAINS a.text
MERGE (a)-[r:RELATED_TO]->(b)
SET r.context = $context
RETURN count(r) AS edges`

	candidatePairs = `MATCH (a:Content)-[:RELATED_TO]->(b:Content)
WHERE toLower(a.text) CONTAINS toLower($question) OR toLower(b.text) CONTAINS toLower($question)
RETURN a.id AS sourceId, a.text AS source, a.url AS sourceUrl,
       b.id AS targetId, b.text AS target, b.url AS targetUrl`
)

// Config holds connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// cypherRunner executes parameterized statements, each in its own session.
type cypherRunner interface {
	Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// Store implements graph.Store on Neo4j.
type Store struct {
	runner cypherRunner
	logger *zap.Logger
}

// New connects to Neo4j and verifies connectivity. An unreachable server is
// reported as *content.FatalInitError.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, &content.FatalInitError{Component: "neo4j", Cause: err}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &content.FatalInitError{Component: "neo4j", Cause: err}
	}
	logger.Info("connected to neo4j", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return newStore(&driverRunner{driver: driver, database: cfg.Database}, logger), nil
}

func newStore(runner cypherRunner, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{runner: runner, logger: logger.Named("neo4j")}
}

// EnsureSchema creates the id constraint and the type and url indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{schemaConstraint, schemaTypeIndex, schemaURLIndex} {
		if _, err := s.runner.Write(ctx, stmt, nil); err != nil {
			return &content.SchemaError{Target: "neo4j", Cause: err}
		}
	}
	return nil
}

// UpsertNodes merges the batch in one transaction.
func (s *Store) UpsertNodes(ctx context.Context, nodes []content.Normalized) error {
	if len(nodes) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, map[string]any{
			"id":   n.ID,
			"text": n.Text,
			"type": string(n.Type),
			"url":  n.URL,
		})
	}
	if _, err := s.runner.Write(ctx, upsertNodes, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert %d nodes: %w", len(nodes), err)
	}
	return nil
}

// LinkSections merges RELATED_TO edges for the heading batch.
func (s *Store) LinkSections(ctx context.Context, headings []content.Normalized, minHeadingLength int) (int, error) {
	if len(headings) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(headings))
	for _, h := range headings {
		rows = append(rows, map[string]any{"id": h.ID})
	}
	params := map[string]any{
		"headings":  rows,
		"minLength": minHeadingLength,
		"bodyTypes": []string{string(content.TypeParagraph), string(content.TypeListItem)},
		"context":   graph.SectionContext,
	}
	records, err := s.runner.Write(ctx, linkSections, params)
	if err != nil {
		return 0, fmt.Errorf("link %d headings: %w", len(headings), err)
	}
	edges := 0
	for _, rec := range records {
		edges += intValue(rec["edges"])
	}
	return edges, nil
}

// CandidatePairs returns every linked pair mentioning question.
func (s *Store) CandidatePairs(ctx context.Context, question string) ([]graph.Pair, error) {
	records, err := s.runner.Read(ctx, candidatePairs, map[string]any{"question": question})
	if err != nil {
		return nil, fmt.Errorf("candidate pairs: %w", err)
	}
	pairs := make([]graph.Pair, 0, len(records))
	for _, rec := range records {
		pairs = append(pairs, graph.Pair{
			Source: graph.Endpoint{ID: stringValue(rec["sourceId"]), Text: stringValue(rec["source"]), URL: stringValue(rec["sourceUrl"])},
			Target: graph.Endpoint{ID: stringValue(rec["targetId"]), Text: stringValue(rec["target"]), URL: stringValue(rec["targetUrl"])},
		})
	}
	return pairs, nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if err := s.runner.Close(ctx); err != nil {
		return fmt.Errorf("close neo4j driver: %w", err)
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return r.run(ctx, neo4j.AccessModeWrite, cypher, params)
}

func (r *driverRunner) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return r.run(ctx, neo4j.AccessModeRead, cypher, params)
}

func (r *driverRunner) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
	defer func() { _ = session.Close(ctx) }()

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, rec.AsMap())
		}
		return out, nil
	}

	var (
		result any
		err    error
	)
	if mode == neo4j.AccessModeRead {
		result, err = session.ExecuteRead(ctx, work)
	} else {
		result, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	rows, _ := result.([]map[string]any)
	return rows, nil
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Store = (*Store)(nil)
