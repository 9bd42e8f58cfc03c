// Package repository persists interpretation rounds and assessment history in
// postgres.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// InterpretationRepository handles interpretation round persistence
type InterpretationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewInterpretationRepository creates a new interpretation repository
func NewInterpretationRepository(db *pgxpool.Pool, logger *logrus.Logger) *InterpretationRepository {
	return &InterpretationRepository{
		db:  db,
		log: logger,
	}
}

const interpretationColumns = `
	id, type, status, workflow_status, user_id, analysis_id, allele_id,
	genepanel_name, genepanel_version, allele_ids, excluded_allele_ids,
	state, user_state, finalized, date_created, date_last_update`

// Create inserts a new interpretation round
func (r *InterpretationRepository) Create(ctx context.Context, interp *domain.Interpretation) error {
	stateJSON, err := json.Marshal(interp.State)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	userStateJSON, err := json.Marshal(interp.UserState)
	if err != nil {
		return fmt.Errorf("marshaling user state: %w", err)
	}
	excludedJSON, err := json.Marshal(interp.ExcludedAlleleIDs)
	if err != nil {
		return fmt.Errorf("marshaling excluded allele ids: %w", err)
	}

	query := `
		INSERT INTO interpretations (
			type, status, workflow_status, user_id, analysis_id, allele_id,
			genepanel_name, genepanel_version, allele_ids, excluded_allele_ids,
			state, user_state, finalized
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING id, date_created, date_last_update`

	err = r.db.QueryRow(ctx, query,
		interp.Type,
		interp.Status,
		interp.WorkflowStatus,
		interp.UserID,
		interp.AnalysisID,
		interp.AlleleID,
		interp.GenepanelName,
		interp.GenepanelVersion,
		interp.AlleleIDs,
		excludedJSON,
		stateJSON,
		userStateJSON,
		interp.Finalized,
	).Scan(&interp.ID, &interp.DateCreated, &interp.DateLastUpdate)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"type":        interp.Type,
			"analysis_id": interp.AnalysisID,
			"allele_id":   interp.AlleleID,
			"error":       err,
		}).Error("Failed to create interpretation")
		return fmt.Errorf("creating interpretation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"interpretation_id": interp.ID,
		"type":              interp.Type,
		"workflow_status":   interp.WorkflowStatus,
	}).Info("Interpretation created successfully")

	return nil
}

// GetByID retrieves an interpretation round by its ID
func (r *InterpretationRepository) GetByID(ctx context.Context, id int64) (*domain.Interpretation, error) {
	query := `SELECT` + interpretationColumns + `
		FROM interpretations
		WHERE id = $1`

	interp, err := scanInterpretation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"interpretation_id": id,
			"error":             err,
		}).Error("Failed to get interpretation by ID")
		return nil, fmt.Errorf("getting interpretation by ID: %w", err)
	}
	return interp, nil
}

// ListForAnalysis retrieves all rounds of an analysis workflow, oldest first
func (r *InterpretationRepository) ListForAnalysis(ctx context.Context, analysisID int64) ([]*domain.Interpretation, error) {
	query := `SELECT` + interpretationColumns + `
		FROM interpretations
		WHERE analysis_id = $1
		ORDER BY id ASC`
	return r.list(ctx, query, analysisID)
}

// ListForAllele retrieves all rounds of an allele workflow, oldest first
func (r *InterpretationRepository) ListForAllele(ctx context.Context, alleleID int64) ([]*domain.Interpretation, error) {
	query := `SELECT` + interpretationColumns + `
		FROM interpretations
		WHERE allele_id = $1 AND type = $2
		ORDER BY id ASC`
	return r.list(ctx, query, alleleID, domain.ALLELE)
}

func (r *InterpretationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Interpretation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list interpretations")
		return nil, fmt.Errorf("listing interpretations: %w", err)
	}
	defer rows.Close()

	var interpretations []*domain.Interpretation
	for rows.Next() {
		interp, err := scanInterpretation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning interpretation row: %w", err)
		}
		interpretations = append(interpretations, interp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interpretation rows: %w", err)
	}
	return interpretations, nil
}

// SaveState persists the round's mutable state and user state
func (r *InterpretationRepository) SaveState(ctx context.Context, interp *domain.Interpretation) error {
	stateJSON, err := json.Marshal(interp.State)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	userStateJSON, err := json.Marshal(interp.UserState)
	if err != nil {
		return fmt.Errorf("marshaling user state: %w", err)
	}

	query := `
		UPDATE interpretations
		SET state = $2, user_state = $3, date_last_update = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, interp.ID, stateJSON, userStateJSON)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"interpretation_id": interp.ID,
			"error":             err,
		}).Error("Failed to save interpretation state")
		return fmt.Errorf("saving interpretation state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
	}

	interp.DateLastUpdate = time.Now()
	return nil
}

// UpdateStatus persists the round's status, workflow status, owner and
// finalized flag after a workflow transition
func (r *InterpretationRepository) UpdateStatus(ctx context.Context, interp *domain.Interpretation) error {
	query := `
		UPDATE interpretations
		SET status = $2, workflow_status = $3, user_id = $4, finalized = $5,
			date_last_update = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		interp.ID,
		interp.Status,
		interp.WorkflowStatus,
		interp.UserID,
		interp.Finalized,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"interpretation_id": interp.ID,
			"status":            interp.Status,
			"error":             err,
		}).Error("Failed to update interpretation status")
		return fmt.Errorf("updating interpretation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"interpretation_id": interp.ID,
		"status":            interp.Status,
		"workflow_status":   interp.WorkflowStatus,
	}).Info("Interpretation status updated")

	return nil
}

func scanInterpretation(row pgx.Row) (*domain.Interpretation, error) {
	var interp domain.Interpretation
	var userID *int64
	var excludedJSON, stateJSON, userStateJSON []byte

	err := row.Scan(
		&interp.ID,
		&interp.Type,
		&interp.Status,
		&interp.WorkflowStatus,
		&userID,
		&interp.AnalysisID,
		&interp.AlleleID,
		&interp.GenepanelName,
		&interp.GenepanelVersion,
		&interp.AlleleIDs,
		&excludedJSON,
		&stateJSON,
		&userStateJSON,
		&interp.Finalized,
		&interp.DateCreated,
		&interp.DateLastUpdate,
	)
	if err != nil {
		return nil, err
	}

	if userID != nil {
		interp.UserID = *userID
	}
	if err := json.Unmarshal(excludedJSON, &interp.ExcludedAlleleIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling excluded allele ids: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &interp.State); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}
	if len(userStateJSON) > 0 {
		if err := json.Unmarshal(userStateJSON, &interp.UserState); err != nil {
			return nil, fmt.Errorf("unmarshaling user state: %w", err)
		}
	}

	return &interp, nil
}
