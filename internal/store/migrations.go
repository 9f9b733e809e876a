package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all SeqFlow tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL DEFAULT '',
		workflow_id          TEXT NOT NULL,
		submitted_by         TEXT NOT NULL DEFAULT '',
		state                TEXT NOT NULL DEFAULT 'CREATED',
		remote_workflow_id   TEXT NOT NULL DEFAULT '',
		remote_analysis_id   TEXT NOT NULL DEFAULT '',
		remote_input_data_id TEXT NOT NULL DEFAULT '',
		analysis_id          TEXT NOT NULL DEFAULT '',
		error_reason         TEXT NOT NULL DEFAULT '',
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL,
		completed_at         TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS file_refs (
		id            TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL,
		locator       TEXT NOT NULL,
		local_path    TEXT NOT NULL DEFAULT '',
		metadata      TEXT NOT NULL DEFAULT '{}',
		pair_id       TEXT NOT NULL DEFAULT '',
		pair_role     TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS analyses (
		id            TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL,
		analysis_type TEXT NOT NULL DEFAULT '',
		output_files  TEXT NOT NULL DEFAULT '[]',
		created_at    TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_submissions_state ON submissions(state)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_submitted_by ON submissions(submitted_by)`,
	`CREATE INDEX IF NOT EXISTS idx_file_refs_submission_id ON file_refs(submission_id)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_submission_id ON analyses(submission_id)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
