package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/siriyd/SMART-CDN/internal/engine"
	"github.com/siriyd/SMART-CDN/internal/forecast"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// Postgres persists the CDN control-plane state: registered edges,
// content metadata, the request log the predictor consumes, and an
// audit trail of issued decisions.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL connection
func NewPostgres(cfg Config) (*Postgres, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateTables creates the necessary database tables
func (p *Postgres) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS edge_nodes (
			edge_id VARCHAR(255) PRIMARY KEY,
			region VARCHAR(255),
			cache_capacity_mb INT NOT NULL DEFAULT 100,
			current_usage_mb INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS content (
			content_id VARCHAR(255) PRIMARY KEY,
			content_type VARCHAR(64) NOT NULL DEFAULT 'other',
			size_kb INT NOT NULL DEFAULT 0,
			category VARCHAR(255),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS request_logs (
			id SERIAL PRIMARY KEY,
			content_id VARCHAR(255) NOT NULL,
			edge_id VARCHAR(255),
			is_cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
			request_timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ai_decisions (
			id SERIAL PRIMARY KEY,
			model_mode VARCHAR(64) NOT NULL,
			decision JSONB NOT NULL,
			decided_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp
			ON request_logs (request_timestamp)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}

// InsertRequestLog appends one request event to the log.
func (p *Postgres) InsertRequestLog(ctx context.Context, event forecast.RequestEvent) error {
	query := `INSERT INTO request_logs (content_id, edge_id, is_cache_hit, request_timestamp)
		VALUES ($1, $2, $3, $4)`
	_, err := p.db.ExecContext(ctx, query,
		event.ContentID, event.EdgeID, event.CacheHit, event.Timestamp.Time)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// RecentRequestLogs returns the events whose timestamp falls inside the
// trailing window, oldest first.
func (p *Postgres) RecentRequestLogs(ctx context.Context, window time.Duration) ([]forecast.RequestEvent, error) {
	query := `SELECT content_id, COALESCE(edge_id, ''), is_cache_hit, request_timestamp
		FROM request_logs
		WHERE request_timestamp >= $1
		ORDER BY request_timestamp ASC`

	rows, err := p.db.QueryContext(ctx, query, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query request logs: %w", err)
	}
	defer rows.Close()

	var events []forecast.RequestEvent
	for rows.Next() {
		var (
			event forecast.RequestEvent
			ts    time.Time
		)
		if err := rows.Scan(&event.ContentID, &event.EdgeID, &event.CacheHit, &ts); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		event.Timestamp = forecast.NewTimestamp(ts)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request logs: %w", err)
	}
	return events, nil
}

// ListContentMetadata returns all registered content items.
func (p *Postgres) ListContentMetadata(ctx context.Context) ([]forecast.ContentMetadata, error) {
	query := `SELECT content_id, content_type, size_kb, COALESCE(category, '') FROM content`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	defer rows.Close()

	var items []forecast.ContentMetadata
	for rows.Next() {
		var m forecast.ContentMetadata
		if err := rows.Scan(&m.ContentID, &m.ContentType, &m.SizeKB, &m.Category); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return items, nil
}

// ListEdgeConstraints returns the current capacity snapshot of every
// registered edge, in the wire form the decision engine accepts.
func (p *Postgres) ListEdgeConstraints(ctx context.Context) ([]engine.EdgeConstraintInput, error) {
	query := `SELECT edge_id, cache_capacity_mb, current_usage_mb, is_active FROM edge_nodes`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query edge nodes: %w", err)
	}
	defer rows.Close()

	var constraints []engine.EdgeConstraintInput
	for rows.Next() {
		var (
			c        engine.EdgeConstraintInput
			capacity int
			usage    int
			active   bool
		)
		if err := rows.Scan(&c.EdgeID, &capacity, &usage, &active); err != nil {
			return nil, fmt.Errorf("scan edge node: %w", err)
		}
		c.CacheCapacityMB = &capacity
		c.CurrentUsageMB = &usage
		c.IsActive = &active
		constraints = append(constraints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge nodes: %w", err)
	}
	return constraints, nil
}

// UpsertEdgeNode registers an edge or refreshes its capacity snapshot.
func (p *Postgres) UpsertEdgeNode(ctx context.Context, edgeID, region string, capacityMB, usageMB int, active bool) error {
	query := `INSERT INTO edge_nodes (edge_id, region, cache_capacity_mb, current_usage_mb, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (edge_id) DO UPDATE SET
			region = EXCLUDED.region,
			cache_capacity_mb = EXCLUDED.cache_capacity_mb,
			current_usage_mb = EXCLUDED.current_usage_mb,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`
	_, err := p.db.ExecContext(ctx, query, edgeID, region, capacityMB, usageMB, active)
	if err != nil {
		return fmt.Errorf("upsert edge node: %w", err)
	}
	return nil
}

// RecordDecisions stores one decision response for auditing.
func (p *Postgres) RecordDecisions(ctx context.Context, resp engine.DecisionResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	query := `INSERT INTO ai_decisions (model_mode, decision, decided_at) VALUES ($1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, query, resp.ModelMode, payload, resp.DecisionTimestamp); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}
