package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/allele-interp-engine/internal/database"
	"github.com/allele-interp-engine/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	ctx := context.Background()

	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := &domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        testPassword,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	databaseURL := "postgres://testuser:" + testPassword + "@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	migrationRunner, err := database.NewMigrationRunner(databaseURL, "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}

	if err := migrationRunner.Up(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testInterpretation() *domain.Interpretation {
	analysisID := int64(9)
	interp := &domain.Interpretation{
		Type:             domain.ANALYSIS,
		Status:           domain.NOT_STARTED,
		WorkflowStatus:   domain.INTERPRETATION,
		AnalysisID:       &analysisID,
		GenepanelName:    "Mendeliome",
		GenepanelVersion: "v04",
		AlleleIDs:        []int64{1, 2, 3},
		ExcludedAlleleIDs: map[string][]int64{
			"frequency": {40},
		},
	}
	interp.State.AlleleState(1).AlleleAssessment.Classification = "5"
	return interp
}

func TestInterpretationRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewInterpretationRepository(db.Pool, logger)

	ctx := context.Background()
	interp := testInterpretation()

	if err := repo.Create(ctx, interp); err != nil {
		t.Fatalf("Failed to create interpretation: %v", err)
	}
	if interp.ID == 0 {
		t.Fatal("Expected created interpretation to have an ID")
	}

	loaded, err := repo.GetByID(ctx, interp.ID)
	if err != nil {
		t.Fatalf("Failed to get interpretation: %v", err)
	}

	if loaded.Type != domain.ANALYSIS {
		t.Errorf("Expected type %s, got %s", domain.ANALYSIS, loaded.Type)
	}
	if loaded.Status != domain.NOT_STARTED {
		t.Errorf("Expected status %s, got %s", domain.NOT_STARTED, loaded.Status)
	}
	if len(loaded.AlleleIDs) != 3 {
		t.Errorf("Expected 3 allele ids, got %d", len(loaded.AlleleIDs))
	}
	if got := loaded.State.Allele[1].AlleleAssessment.Classification; got != "5" {
		t.Errorf("Expected classification 5 in state, got %q", got)
	}
	if len(loaded.ExcludedAlleleIDs["frequency"]) != 1 {
		t.Errorf("Expected one frequency-excluded allele, got %v", loaded.ExcludedAlleleIDs)
	}
}

func TestInterpretationRepository_GetByID_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewInterpretationRepository(db.Pool, logger)

	_, err := repo.GetByID(context.Background(), 999999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInterpretationRepository_SaveStateAndStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewInterpretationRepository(db.Pool, logger)

	ctx := context.Background()
	interp := testInterpretation()
	if err := repo.Create(ctx, interp); err != nil {
		t.Fatalf("Failed to create interpretation: %v", err)
	}

	interp.State.AlleleState(2).AlleleAssessment.Classification = "3"
	if err := repo.SaveState(ctx, interp); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	interp.Status = domain.ONGOING
	interp.UserID = 7
	if err := repo.UpdateStatus(ctx, interp); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	loaded, err := repo.GetByID(ctx, interp.ID)
	if err != nil {
		t.Fatalf("Failed to get interpretation: %v", err)
	}
	if loaded.Status != domain.ONGOING {
		t.Errorf("Expected status %s, got %s", domain.ONGOING, loaded.Status)
	}
	if loaded.UserID != 7 {
		t.Errorf("Expected user 7, got %d", loaded.UserID)
	}
	if got := loaded.State.Allele[2].AlleleAssessment.Classification; got != "3" {
		t.Errorf("Expected classification 3 in saved state, got %q", got)
	}
}

func TestInterpretationRepository_ListForAnalysis(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewInterpretationRepository(db.Pool, logger)

	ctx := context.Background()

	first := testInterpretation()
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Failed to create first round: %v", err)
	}

	second := testInterpretation()
	second.Status = domain.NOT_STARTED
	second.WorkflowStatus = domain.REVIEW
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Failed to create second round: %v", err)
	}

	rounds, err := repo.ListForAnalysis(ctx, 9)
	if err != nil {
		t.Fatalf("Failed to list rounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("Expected 2 rounds, got %d", len(rounds))
	}
	if rounds[0].ID >= rounds[1].ID {
		t.Error("Expected rounds ordered oldest first")
	}
}

func TestAssessmentRepository_SupersedeChain(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewAssessmentRepository(db.Pool, logger)

	ctx := context.Background()

	first := &domain.AlleleAssessment{
		AlleleID:         1,
		Classification:   "3",
		GenepanelName:    "Mendeliome",
		GenepanelVersion: "v04",
	}
	if err := repo.CreateAlleleAssessment(ctx, first); err != nil {
		t.Fatalf("Failed to create first assessment: %v", err)
	}

	second := &domain.AlleleAssessment{
		AlleleID:         1,
		Classification:   "5",
		GenepanelName:    "Mendeliome",
		GenepanelVersion: "v04",
		Evaluation: domain.AssessmentEvaluation{
			ACMG: domain.ACMGEvaluation{
				Included: []domain.ACMGEntry{{UUID: "u1", Code: "PVS1"}},
			},
		},
	}
	if err := repo.CreateAlleleAssessment(ctx, second); err != nil {
		t.Fatalf("Failed to create second assessment: %v", err)
	}

	latest, err := repo.LatestAlleleAssessment(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to get latest assessment: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Expected latest assessment %d, got %d", second.ID, latest.ID)
	}
	if latest.Classification != "5" {
		t.Errorf("Expected classification 5, got %q", latest.Classification)
	}
	if len(latest.Evaluation.ACMG.Included) != 1 {
		t.Errorf("Expected 1 included code, got %d", len(latest.Evaluation.ACMG.Included))
	}
}

func TestAssessmentRepository_ReferenceAssessments(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewAssessmentRepository(db.Pool, logger)

	ctx := context.Background()

	ra := &domain.ReferenceAssessment{
		AlleleID:    1,
		ReferenceID: 100,
		Evaluation:  map[string]any{"relevance": "Yes"},
	}
	if err := repo.CreateReferenceAssessment(ctx, ra); err != nil {
		t.Fatalf("Failed to create reference assessment: %v", err)
	}

	updated := &domain.ReferenceAssessment{
		AlleleID:    1,
		ReferenceID: 100,
		Evaluation:  map[string]any{"relevance": "No"},
	}
	if err := repo.CreateReferenceAssessment(ctx, updated); err != nil {
		t.Fatalf("Failed to supersede reference assessment: %v", err)
	}

	current, err := repo.LatestReferenceAssessments(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list reference assessments: %v", err)
	}
	if len(current) != 1 {
		t.Fatalf("Expected 1 current reference assessment, got %d", len(current))
	}
	if current[0].Evaluation["relevance"] != "No" {
		t.Errorf("Expected superseding evaluation, got %v", current[0].Evaluation)
	}
}
