package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// ChangeRepository persists one change report per run as a JSONB document.
type ChangeRepository struct {
	db *sqlx.DB
}

// NewChangeRepository creates a change repository.
func NewChangeRepository(db *sqlx.DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// Save writes a run's change report, replacing any earlier one.
func (r *ChangeRepository) Save(ctx context.Context, report *domain.ChangeReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode change report: %w", err)
	}

	query := `
		INSERT INTO change_detections (run_id, previous_run_id, detected_at, report)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (run_id) DO UPDATE
		SET previous_run_id = EXCLUDED.previous_run_id,
		    detected_at = EXCLUDED.detected_at,
		    report = EXCLUDED.report
	`

	if _, execErr := r.db.ExecContext(ctx, query,
		report.CurrentRunID, report.PreviousRunID, report.DetectedAt, payload); execErr != nil {
		return fmt.Errorf("save change report: %w", execErr)
	}

	return nil
}

// GetByRun loads a run's change report.
func (r *ChangeRepository) GetByRun(ctx context.Context, runID string) (*domain.ChangeReport, error) {
	var payload []byte
	query := `SELECT report FROM change_detections WHERE run_id = $1`

	if err := r.db.GetContext(ctx, &payload, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChangeReportNotFound
		}
		return nil, fmt.Errorf("get change report: %w", err)
	}

	var report domain.ChangeReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode change report: %w", err)
	}

	return &report, nil
}
