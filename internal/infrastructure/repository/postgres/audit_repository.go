package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

// AuditRepository keeps a best-effort trail of detection attempts. It stores
// metadata only; image bytes never reach the database.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across instance startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS detections (
	id TEXT PRIMARY KEY,
	client_key TEXT NOT NULL,
	verified_label TEXT,
	verified_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	disease_label TEXT,
	disease_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	prediction_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_client_key ON detections(client_key);
CREATE INDEX IF NOT EXISTS idx_detections_created_at ON detections(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) RecordDetection(ctx context.Context, rec domain.AuditRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO detections (
	id, client_key, verified_label, verified_confidence, disease_label, disease_confidence, prediction_count, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		rec.DetectionID, rec.ClientKey, rec.VerifiedLabel, rec.VerifiedConfidence,
		rec.DiseaseLabel, rec.DiseaseConfidence, rec.PredictionCount, rec.Status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert detection audit row: %w", err)
	}
	return nil
}
