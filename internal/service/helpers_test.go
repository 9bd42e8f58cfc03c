package service

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEngineConfig() *domain.EngineConfig {
	return &domain.EngineConfig{
		Classification: domain.ClassificationConfig{
			Options: []domain.ClassificationOption{
				{Value: "5", Name: "Pathogenic", OutdatedAfterDays: 180},
				{Value: "4", Name: "Likely pathogenic", OutdatedAfterDays: 180},
				{Value: "3", Name: "Uncertain significance", OutdatedAfterDays: 180},
				{Value: "2", Name: "Likely benign"},
				{Value: "1", Name: "Benign"},
				{Value: "U", Name: "Unclassified"},
				{Value: "RF", Name: "Risk factor"},
				{Value: "DR", Name: "Drug response"},
				{Value: "NP", Name: "Not provided"},
			},
		},
		ACMG: domain.ACMGConfig{
			PathogenicLadder: []string{"PVS", "PS", "PM", "PP"},
			BenignLadder:     []string{"BA", "BS", "BP"},
		},
		FinalizeRequirements: map[domain.WorkflowType]domain.FinalizeRequirements{
			domain.ANALYSIS: {WorkflowStatus: []domain.WorkflowStatus{domain.REVIEW, domain.MEDICAL_REVIEW}},
			domain.ALLELE:   {WorkflowStatus: []domain.WorkflowStatus{domain.INTERPRETATION}},
		},
		ConsequencePriority: []string{
			"transcript_ablation",
			"stop_gained",
			"frameshift_variant",
			"missense_variant",
			"synonymous_variant",
		},
		CommentDebounce: 200 * time.Millisecond,
	}
}

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }
