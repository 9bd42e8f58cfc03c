// Package store provides a single-file sqlite persistence layer for
// standalone deployments, mirroring the postgres repository surface without
// requiring external databases.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/allele-interp-engine/internal/domain"
)

// Store persists interpretation rounds and assessment history in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens the store at dbPath, creating the database file and schema if
// they don't exist.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS interpretations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Not started',
		workflow_status TEXT NOT NULL DEFAULT 'Interpretation',
		user_id INTEGER,
		analysis_id INTEGER,
		allele_id INTEGER,
		genepanel_name TEXT NOT NULL DEFAULT '',
		genepanel_version TEXT NOT NULL DEFAULT '',
		allele_ids TEXT NOT NULL DEFAULT '[]',
		excluded_allele_ids TEXT NOT NULL DEFAULT '{}',
		state TEXT NOT NULL DEFAULT '{}',
		user_state TEXT NOT NULL DEFAULT '{}',
		finalized INTEGER NOT NULL DEFAULT 0,
		date_created DATETIME DEFAULT CURRENT_TIMESTAMP,
		date_last_update DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_interpretations_analysis ON interpretations(analysis_id);
	CREATE INDEX IF NOT EXISTS idx_interpretations_allele ON interpretations(allele_id);

	CREATE TABLE IF NOT EXISTS alleleassessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		allele_id INTEGER NOT NULL,
		classification TEXT NOT NULL,
		evaluation TEXT NOT NULL DEFAULT '{}',
		attachment_ids TEXT NOT NULL DEFAULT '[]',
		genepanel_name TEXT NOT NULL DEFAULT '',
		genepanel_version TEXT NOT NULL DEFAULT '',
		analysis_id INTEGER,
		date_created DATETIME DEFAULT CURRENT_TIMESTAMP,
		date_superceded DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_alleleassessments_allele ON alleleassessments(allele_id);
	`

	_, err := db.Exec(schema)
	return err
}

// CreateInterpretation inserts a new interpretation round.
func (s *Store) CreateInterpretation(ctx context.Context, interp *domain.Interpretation) error {
	stateJSON, err := json.Marshal(interp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	userStateJSON, err := json.Marshal(interp.UserState)
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}
	alleleIDsJSON, err := json.Marshal(interp.AlleleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal allele ids: %w", err)
	}
	excludedJSON, err := json.Marshal(interp.ExcludedAlleleIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal excluded allele ids: %w", err)
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO interpretations (
			type, status, workflow_status, user_id, analysis_id, allele_id,
			genepanel_name, genepanel_version, allele_ids, excluded_allele_ids,
			state, user_state, finalized, date_created, date_last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(interp.Type),
		string(interp.Status),
		string(interp.WorkflowStatus),
		interp.UserID,
		interp.AnalysisID,
		interp.AlleleID,
		interp.GenepanelName,
		interp.GenepanelVersion,
		string(alleleIDsJSON),
		string(excludedJSON),
		string(stateJSON),
		string(userStateJSON),
		interp.Finalized,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interpretation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	interp.ID = id
	interp.DateCreated = now
	interp.DateLastUpdate = now

	return nil
}

// GetInterpretation retrieves an interpretation round by ID.
func (s *Store) GetInterpretation(ctx context.Context, id int64) (*domain.Interpretation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, workflow_status, user_id, analysis_id, allele_id,
			genepanel_name, genepanel_version, allele_ids, excluded_allele_ids,
			state, user_state, finalized, date_created, date_last_update
		FROM interpretations
		WHERE id = ?
	`, id)

	interp, err := scanStoredInterpretation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return interp, nil
}

// ListForAnalysis returns all rounds of an analysis workflow, oldest first.
func (s *Store) ListForAnalysis(ctx context.Context, analysisID int64) ([]*domain.Interpretation, error) {
	return s.list(ctx, `
		SELECT id, type, status, workflow_status, user_id, analysis_id, allele_id,
			genepanel_name, genepanel_version, allele_ids, excluded_allele_ids,
			state, user_state, finalized, date_created, date_last_update
		FROM interpretations
		WHERE analysis_id = ?
		ORDER BY id ASC
	`, analysisID)
}

// ListForAllele returns all rounds of an allele workflow, oldest first.
func (s *Store) ListForAllele(ctx context.Context, alleleID int64) ([]*domain.Interpretation, error) {
	return s.list(ctx, `
		SELECT id, type, status, workflow_status, user_id, analysis_id, allele_id,
			genepanel_name, genepanel_version, allele_ids, excluded_allele_ids,
			state, user_state, finalized, date_created, date_last_update
		FROM interpretations
		WHERE allele_id = ? AND type = ?
		ORDER BY id ASC
	`, alleleID, string(domain.ALLELE))
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.Interpretation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*domain.Interpretation
	for rows.Next() {
		interp, err := scanStoredInterpretation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, interp)
	}
	return result, rows.Err()
}

// SaveState persists the round's mutable state.
func (s *Store) SaveState(ctx context.Context, interp *domain.Interpretation) error {
	stateJSON, err := json.Marshal(interp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	userStateJSON, err := json.Marshal(interp.UserState)
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE interpretations
		SET state = ?, user_state = ?, date_last_update = ?
		WHERE id = ?
	`, string(stateJSON), string(userStateJSON), now, interp.ID)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
	}

	interp.DateLastUpdate = now
	return nil
}

// UpdateStatus persists the round's status after a workflow transition.
func (s *Store) UpdateStatus(ctx context.Context, interp *domain.Interpretation) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interpretations
		SET status = ?, workflow_status = ?, user_id = ?, finalized = ?,
			date_last_update = ?
		WHERE id = ?
	`,
		string(interp.Status),
		string(interp.WorkflowStatus),
		interp.UserID,
		interp.Finalized,
		time.Now(),
		interp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
	}
	return nil
}

// CreateAlleleAssessment inserts a new current assessment for the allele,
// superseding any existing current one.
func (s *Store) CreateAlleleAssessment(ctx context.Context, assessment *domain.AlleleAssessment) error {
	evaluationJSON, err := json.Marshal(assessment.Evaluation)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}
	attachmentsJSON, err := json.Marshal(assessment.AttachmentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal attachment ids: %w", err)
	}

	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE alleleassessments
		SET date_superceded = ?
		WHERE allele_id = ? AND date_superceded IS NULL
	`, now, assessment.AlleleID)
	if err != nil {
		return fmt.Errorf("failed to supersede previous assessment: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO alleleassessments (
			allele_id, classification, evaluation, attachment_ids,
			genepanel_name, genepanel_version, analysis_id, date_created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		assessment.AlleleID,
		assessment.Classification,
		string(evaluationJSON),
		string(attachmentsJSON),
		assessment.GenepanelName,
		assessment.GenepanelVersion,
		assessment.AnalysisID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	assessment.ID = id
	assessment.DateCreated = now
	return nil
}

// LatestAlleleAssessment retrieves the current assessment for an allele, or
// nil when none exists.
func (s *Store) LatestAlleleAssessment(ctx context.Context, alleleID int64) (*domain.AlleleAssessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, allele_id, classification, evaluation, attachment_ids,
			genepanel_name, genepanel_version, analysis_id,
			date_created, date_superceded
		FROM alleleassessments
		WHERE allele_id = ? AND date_superceded IS NULL
		LIMIT 1
	`, alleleID)

	assessment, err := scanStoredAssessment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return assessment, nil
}

func scanStoredInterpretation(sc scanner) (*domain.Interpretation, error) {
	interp := &domain.Interpretation{}
	var interpType, status, workflowStatus string
	var userID sql.NullInt64
	var alleleIDsJSON, excludedJSON, stateJSON, userStateJSON string

	err := sc.Scan(
		&interp.ID, &interpType, &status, &workflowStatus,
		&userID, &interp.AnalysisID, &interp.AlleleID,
		&interp.GenepanelName, &interp.GenepanelVersion,
		&alleleIDsJSON, &excludedJSON, &stateJSON, &userStateJSON,
		&interp.Finalized, &interp.DateCreated, &interp.DateLastUpdate,
	)
	if err != nil {
		return nil, err
	}

	interp.Type = domain.WorkflowType(interpType)
	interp.Status = domain.InterpretationStatus(status)
	interp.WorkflowStatus = domain.WorkflowStatus(workflowStatus)
	if userID.Valid {
		interp.UserID = userID.Int64
	}

	if err := json.Unmarshal([]byte(alleleIDsJSON), &interp.AlleleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allele ids: %w", err)
	}
	if err := json.Unmarshal([]byte(excludedJSON), &interp.ExcludedAlleleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal excluded allele ids: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &interp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(userStateJSON), &interp.UserState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user state: %w", err)
	}

	return interp, nil
}

func scanStoredAssessment(sc scanner) (*domain.AlleleAssessment, error) {
	assessment := &domain.AlleleAssessment{}
	var evaluationJSON, attachmentsJSON string

	err := sc.Scan(
		&assessment.ID, &assessment.AlleleID, &assessment.Classification,
		&evaluationJSON, &attachmentsJSON,
		&assessment.GenepanelName, &assessment.GenepanelVersion,
		&assessment.AnalysisID,
		&assessment.DateCreated, &assessment.DateSuperceded,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(evaluationJSON), &assessment.Evaluation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
	}
	if err := json.Unmarshal([]byte(attachmentsJSON), &assessment.AttachmentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attachment ids: %w", err)
	}

	return assessment, nil
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}
