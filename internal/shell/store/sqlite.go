package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/weld/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID             string  `db:"id"`
	Project        string  `db:"project"`
	Environment    string  `db:"environment"`
	State          string  `db:"state"`
	ErrorMessage   string  `db:"error_message"`
	ComponentCount int     `db:"component_count"`
	ResourceCount  int     `db:"resource_count"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
	FinishedAt     *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.db, opts)
}

// =============================================================================
// Resource Operations
// =============================================================================

// resourceRow represents a provided resource row in the database.
type resourceRow struct {
	RunID          string  `db:"run_id"`
	ConcreteKey    string  `db:"concrete_key"`
	ResourceType   string  `db:"resource_type"`
	RequirementKey string  `db:"requirement_key"`
	Name           string  `db:"name"`
	Handle         *string `db:"handle"`
	Units          *string `db:"units"`
	Members        *string `db:"members"`
}

func (s *SQLiteStore) CreateResource(ctx context.Context, rec *domain.ResourceRecord) error {
	return createResource(ctx, s.db, rec)
}

func (s *SQLiteStore) ListResourcesByRun(ctx context.Context, runID string) ([]domain.ResourceRecord, error) {
	return listResourcesByRun(ctx, s.db, runID)
}

// =============================================================================
// Component Operations
// =============================================================================

// componentRow represents a component outcome row in the database.
type componentRow struct {
	RunID         string  `db:"run_id"`
	ComponentID   string  `db:"component_id"`
	ComponentType string  `db:"component_type"`
	Status        string  `db:"status"`
	Outputs       *string `db:"outputs"`
	ErrorMessage  string  `db:"error_message"`
}

func (s *SQLiteStore) CreateComponent(ctx context.Context, rec *domain.ComponentRecord) error {
	return createComponent(ctx, s.db, rec)
}

func (s *SQLiteStore) ListComponentsByRun(ctx context.Context, runID string) ([]domain.ComponentRecord, error) {
	return listComponentsByRun(ctx, s.db, runID)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CreateResource(ctx context.Context, rec *domain.ResourceRecord) error {
	return createResource(ctx, s.tx, rec)
}

func (s *txSQLiteStore) ListResourcesByRun(ctx context.Context, runID string) ([]domain.ResourceRecord, error) {
	return listResourcesByRun(ctx, s.tx, runID)
}

func (s *txSQLiteStore) CreateComponent(ctx context.Context, rec *domain.ComponentRecord) error {
	return createComponent(ctx, s.tx, rec)
}

func (s *txSQLiteStore) ListComponentsByRun(ctx context.Context, runID string) ([]domain.ComponentRecord, error) {
	return listComponentsByRun(ctx, s.tx, runID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createRun(ctx context.Context, exec executor, run *domain.Run) error {
	var finishedAt *string
	if run.FinishedAt != nil {
		s := run.FinishedAt.Format(time.RFC3339)
		finishedAt = &s
	}

	query := `
		INSERT INTO runs (
			id, project, environment, state, error_message,
			component_count, resource_count, created_at, updated_at, finished_at
		) VALUES (
			:id, :project, :environment, :state, :error_message,
			:component_count, :resource_count, :created_at, :updated_at, :finished_at
		)`

	row := map[string]any{
		"id":              run.ID,
		"project":         run.Project,
		"environment":     run.Environment,
		"state":           string(run.State),
		"error_message":   run.ErrorMessage,
		"component_count": run.ComponentCount,
		"resource_count":  run.ResourceCount,
		"created_at":      run.CreatedAt.Format(time.RFC3339),
		"updated_at":      run.UpdatedAt.Format(time.RFC3339),
		"finished_at":     finishedAt,
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}

	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*domain.Run, error) {
	query := `SELECT * FROM runs WHERE id = ?`

	var row runRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}

	return rowToRun(&row), nil
}

func updateRun(ctx context.Context, exec executor, run *domain.Run) error {
	var finishedAt *string
	if run.FinishedAt != nil {
		s := run.FinishedAt.Format(time.RFC3339)
		finishedAt = &s
	}

	query := `
		UPDATE runs SET
			state = :state,
			error_message = :error_message,
			component_count = :component_count,
			resource_count = :resource_count,
			updated_at = :updated_at,
			finished_at = :finished_at
		WHERE id = :id`

	row := map[string]any{
		"id":              run.ID,
		"state":           string(run.State),
		"error_message":   run.ErrorMessage,
		"component_count": run.ComponentCount,
		"resource_count":  run.ResourceCount,
		"updated_at":      run.UpdatedAt.Format(time.RFC3339),
		"finished_at":     finishedAt,
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}

	return nil
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []runRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, *rowToRun(&row))
	}

	return runs, nil
}

func createResource(ctx context.Context, exec executor, rec *domain.ResourceRecord) error {
	handleJSON, err := json.Marshal(rec.Handle)
	if err != nil {
		return NewStoreError("CreateResource", "resource", rec.ConcreteKey, "failed to serialize handle", ErrInvalidData)
	}
	unitsJSON, err := json.Marshal(rec.Units)
	if err != nil {
		return NewStoreError("CreateResource", "resource", rec.ConcreteKey, "failed to serialize units", ErrInvalidData)
	}
	membersJSON, err := json.Marshal(rec.Members)
	if err != nil {
		return NewStoreError("CreateResource", "resource", rec.ConcreteKey, "failed to serialize members", ErrInvalidData)
	}

	query := `
		INSERT INTO run_resources (
			run_id, concrete_key, resource_type, requirement_key,
			name, handle, units, members
		) VALUES (
			:run_id, :concrete_key, :resource_type, :requirement_key,
			:name, :handle, :units, :members
		)`

	row := map[string]any{
		"run_id":          rec.RunID,
		"concrete_key":    rec.ConcreteKey,
		"resource_type":   rec.ResourceType,
		"requirement_key": rec.RequirementKey,
		"name":            rec.Name,
		"handle":          string(handleJSON),
		"units":           string(unitsJSON),
		"members":         string(membersJSON),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateResource", "resource", rec.ConcreteKey, "resource already recorded for this run", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateResource", "resource", rec.ConcreteKey, "run not found", ErrForeignKey)
		}
		return NewStoreError("CreateResource", "resource", rec.ConcreteKey, err.Error(), err)
	}

	return nil
}

func listResourcesByRun(ctx context.Context, exec executor, runID string) ([]domain.ResourceRecord, error) {
	query := `SELECT * FROM run_resources WHERE run_id = ? ORDER BY concrete_key`

	var rows []resourceRow
	err := exec.SelectContext(ctx, &rows, query, runID)
	if err != nil {
		return nil, NewStoreError("ListResourcesByRun", "resource", runID, err.Error(), err)
	}

	records := make([]domain.ResourceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToResource(&row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, nil
}

func createComponent(ctx context.Context, exec executor, rec *domain.ComponentRecord) error {
	outputsJSON, err := json.Marshal(rec.Outputs)
	if err != nil {
		return NewStoreError("CreateComponent", "component", rec.ComponentID, "failed to serialize outputs", ErrInvalidData)
	}

	query := `
		INSERT INTO run_components (
			run_id, component_id, component_type, status, outputs, error_message
		) VALUES (
			:run_id, :component_id, :component_type, :status, :outputs, :error_message
		)`

	row := map[string]any{
		"run_id":         rec.RunID,
		"component_id":   rec.ComponentID,
		"component_type": rec.ComponentType,
		"status":         string(rec.Status),
		"outputs":        string(outputsJSON),
		"error_message":  rec.ErrorMessage,
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateComponent", "component", rec.ComponentID, "component already recorded for this run", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateComponent", "component", rec.ComponentID, "run not found", ErrForeignKey)
		}
		return NewStoreError("CreateComponent", "component", rec.ComponentID, err.Error(), err)
	}

	return nil
}

func listComponentsByRun(ctx context.Context, exec executor, runID string) ([]domain.ComponentRecord, error) {
	query := `SELECT * FROM run_components WHERE run_id = ? ORDER BY component_id`

	var rows []componentRow
	err := exec.SelectContext(ctx, &rows, query, runID)
	if err != nil {
		return nil, NewStoreError("ListComponentsByRun", "component", runID, err.Error(), err)
	}

	records := make([]domain.ComponentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToComponent(&row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, nil
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

// rowToRun converts a database row to a domain.Run.
func rowToRun(row *runRow) *domain.Run {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var finishedAt *time.Time
	if row.FinishedAt != nil && *row.FinishedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.FinishedAt)
		finishedAt = &t
	}

	return &domain.Run{
		ID:             row.ID,
		Project:        row.Project,
		Environment:    row.Environment,
		State:          domain.RunState(row.State),
		ErrorMessage:   row.ErrorMessage,
		ComponentCount: row.ComponentCount,
		ResourceCount:  row.ResourceCount,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		FinishedAt:     finishedAt,
	}
}

// rowToResource converts a database row to a domain.ResourceRecord.
func rowToResource(row *resourceRow) (*domain.ResourceRecord, error) {
	rec := &domain.ResourceRecord{
		RunID:          row.RunID,
		ConcreteKey:    row.ConcreteKey,
		ResourceType:   row.ResourceType,
		RequirementKey: row.RequirementKey,
		Name:           row.Name,
	}

	if row.Handle != nil && *row.Handle != "" && *row.Handle != "null" {
		if err := json.Unmarshal([]byte(*row.Handle), &rec.Handle); err != nil {
			return nil, NewStoreError("rowToResource", "resource", row.ConcreteKey, "failed to parse handle", ErrInvalidData)
		}
	}
	if row.Units != nil && *row.Units != "" && *row.Units != "null" {
		if err := json.Unmarshal([]byte(*row.Units), &rec.Units); err != nil {
			return nil, NewStoreError("rowToResource", "resource", row.ConcreteKey, "failed to parse units", ErrInvalidData)
		}
	}
	if row.Members != nil && *row.Members != "" && *row.Members != "null" {
		if err := json.Unmarshal([]byte(*row.Members), &rec.Members); err != nil {
			return nil, NewStoreError("rowToResource", "resource", row.ConcreteKey, "failed to parse members", ErrInvalidData)
		}
	}

	return rec, nil
}

// rowToComponent converts a database row to a domain.ComponentRecord.
func rowToComponent(row *componentRow) (*domain.ComponentRecord, error) {
	rec := &domain.ComponentRecord{
		RunID:         row.RunID,
		ComponentID:   row.ComponentID,
		ComponentType: row.ComponentType,
		Status:        domain.ComponentStatus(row.Status),
		ErrorMessage:  row.ErrorMessage,
	}

	if row.Outputs != nil && *row.Outputs != "" && *row.Outputs != "null" {
		if err := json.Unmarshal([]byte(*row.Outputs), &rec.Outputs); err != nil {
			return nil, NewStoreError("rowToComponent", "component", row.ComponentID, "failed to parse outputs", ErrInvalidData)
		}
	}

	return rec, nil
}
