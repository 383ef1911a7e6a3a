package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full DDL, applied idempotently on startup. Per-run tables
// cascade from runs so deleting a run removes every record it produced.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	application_id  TEXT NOT NULL,
	start_url       TEXT NOT NULL,
	status          TEXT NOT NULL,
	policy          JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	pages_analyzed  INTEGER NOT NULL DEFAULT 0,
	links_found     INTEGER NOT NULL DEFAULT 0,
	broken_links    INTEGER NOT NULL DEFAULT 0,
	blank_pages     INTEGER NOT NULL DEFAULT 0,
	content_pages   INTEGER NOT NULL DEFAULT 0,
	technical_score INTEGER NOT NULL DEFAULT 0,
	task_id         TEXT,
	error_message   TEXT,
	stack_trace     TEXT
);

CREATE INDEX IF NOT EXISTS runs_start_url_created_at_idx
	ON runs (start_url, created_at DESC);
CREATE INDEX IF NOT EXISTS runs_application_id_idx
	ON runs (application_id);

CREATE TABLE IF NOT EXISTS pages (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	url              TEXT NOT NULL,
	fetched_at       TIMESTAMPTZ NOT NULL,
	status_code      INTEGER NOT NULL,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	title            TEXT NOT NULL DEFAULT '',
	word_count       INTEGER NOT NULL DEFAULT 0,
	page_type        TEXT NOT NULL,
	has_header       BOOLEAN NOT NULL DEFAULT FALSE,
	has_footer       BOOLEAN NOT NULL DEFAULT FALSE,
	has_navigation   BOOLEAN NOT NULL DEFAULT FALSE,
	structure        JSONB NOT NULL DEFAULT '{}',
	path             JSONB NOT NULL DEFAULT '[]',
	parent_url       TEXT,
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS link_validations (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	url              TEXT NOT NULL,
	status_code      INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	title            TEXT,
	error_message    TEXT,
	checked_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS graph_nodes (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	parent_url TEXT,
	path       JSONB NOT NULL DEFAULT '[]',
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS page_sources (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	html       TEXT NOT NULL,
	parent_url TEXT,
	saved_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS change_detections (
	run_id          TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
	previous_run_id TEXT,
	detected_at     TIMESTAMPTZ NOT NULL,
	report          JSONB NOT NULL
);
`

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
