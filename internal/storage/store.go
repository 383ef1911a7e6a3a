package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
)

// Store is the persistence contract consumed by the executor, the API, and
// the maintenance sweeper.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	ListRuns(ctx context.Context, params ListParams) ([]*domain.Run, error)
	DeleteRun(ctx context.Context, id string) error
	PreviousCompletedRun(ctx context.Context, startURL string, before time.Time, excludeID string) (*domain.Run, error)
	DeleteRunsOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Pages
	InsertPages(ctx context.Context, pages []domain.PageRecord) error
	GetPages(ctx context.Context, runID string) ([]domain.PageRecord, error)
	GetPage(ctx context.Context, runID, url string) (*domain.PageRecord, error)

	// Link validations
	InsertLinkValidations(ctx context.Context, validations []domain.LinkValidation) error
	GetLinkValidations(ctx context.Context, runID string) ([]domain.LinkValidation, error)
	GetBrokenLinkDetails(ctx context.Context, runID string) ([]domain.BrokenLinkDetail, error)

	// Graph
	SaveGraph(ctx context.Context, snapshot *domain.GraphSnapshot) error
	GetGraph(ctx context.Context, runID string) (*domain.GraphSnapshot, error)

	// Page sources
	InsertPageSources(ctx context.Context, sources []domain.PageSource) error
	ResolvePageSource(ctx context.Context, runID, url string) (*domain.SourceLookup, error)

	// Change detection
	SaveChangeReport(ctx context.Context, report *domain.ChangeReport) error
	GetChangeReport(ctx context.Context, runID string) (*domain.ChangeReport, error)

	// Export
	BuildExport(ctx context.Context, runID string) (*domain.ExportDocument, error)

	Ping(ctx context.Context) error
	Close() error
}

// PostgresStore implements Store over sqlx + PostgreSQL.
type PostgresStore struct {
	db      *sqlx.DB
	log     logger.Interface
	runs    *RunRepository
	pages   *PageRepository
	links   *LinkRepository
	graphs  *GraphRepository
	sources *SourceRepository
	changes *ChangeRepository
}

// Open connects, migrates the schema, and returns a ready store.
func Open(ctx context.Context, cfg Config, log logger.Interface) (*PostgresStore, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	if migrateErr := Migrate(ctx, db); migrateErr != nil {
		db.Close()
		return nil, migrateErr
	}

	return NewPostgresStore(db, log), nil
}

// NewPostgresStore wires a store around an existing connection pool.
func NewPostgresStore(db *sqlx.DB, log logger.Interface) *PostgresStore {
	graphs := NewGraphRepository(db)

	return &PostgresStore{
		db:      db,
		log:     log.WithComponent("storage"),
		runs:    NewRunRepository(db),
		pages:   NewPageRepository(db),
		links:   NewLinkRepository(db),
		graphs:  graphs,
		sources: NewSourceRepository(db, graphs),
		changes: NewChangeRepository(db),
	}
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return s.runs.Create(ctx, run)
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return s.runs.Update(ctx, run)
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *PostgresStore) ListRuns(ctx context.Context, params ListParams) ([]*domain.Run, error) {
	return s.runs.List(ctx, params)
}

func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	return s.runs.Delete(ctx, id)
}

func (s *PostgresStore) PreviousCompletedRun(
	ctx context.Context, startURL string, before time.Time, excludeID string,
) (*domain.Run, error) {
	return s.runs.PreviousCompleted(ctx, startURL, before, excludeID)
}

func (s *PostgresStore) DeleteRunsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return s.runs.DeleteOlderThan(ctx, cutoff)
}

func (s *PostgresStore) InsertPages(ctx context.Context, pages []domain.PageRecord) error {
	return s.pages.BulkInsert(ctx, pages)
}

func (s *PostgresStore) GetPages(ctx context.Context, runID string) ([]domain.PageRecord, error) {
	return s.pages.ListByRun(ctx, runID)
}

func (s *PostgresStore) GetPage(ctx context.Context, runID, url string) (*domain.PageRecord, error) {
	return s.pages.GetByURL(ctx, runID, url)
}

func (s *PostgresStore) InsertLinkValidations(ctx context.Context, validations []domain.LinkValidation) error {
	return s.links.BulkInsert(ctx, validations)
}

func (s *PostgresStore) GetLinkValidations(ctx context.Context, runID string) ([]domain.LinkValidation, error) {
	return s.links.ListByRun(ctx, runID)
}

func (s *PostgresStore) GetBrokenLinkDetails(ctx context.Context, runID string) ([]domain.BrokenLinkDetail, error) {
	return s.links.ListBrokenDetails(ctx, runID)
}

func (s *PostgresStore) SaveGraph(ctx context.Context, snapshot *domain.GraphSnapshot) error {
	return s.graphs.Save(ctx, snapshot)
}

func (s *PostgresStore) GetGraph(ctx context.Context, runID string) (*domain.GraphSnapshot, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.graphs.GetByRun(ctx, runID, run.StartURL)
}

func (s *PostgresStore) InsertPageSources(ctx context.Context, sources []domain.PageSource) error {
	return s.sources.BulkInsert(ctx, sources)
}

func (s *PostgresStore) ResolvePageSource(ctx context.Context, runID, url string) (*domain.SourceLookup, error) {
	return s.sources.Resolve(ctx, runID, url)
}

func (s *PostgresStore) SaveChangeReport(ctx context.Context, report *domain.ChangeReport) error {
	return s.changes.Save(ctx, report)
}

func (s *PostgresStore) GetChangeReport(ctx context.Context, runID string) (*domain.ChangeReport, error) {
	return s.changes.GetByRun(ctx, runID)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
