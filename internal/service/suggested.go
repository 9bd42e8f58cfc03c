package service

import (
	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// SuggestedClassifier derives a suggested classification from the included
// evidence codes, following the ACMG/AMP 2015 combination rules (Table 5).
// Strength overrides count at their overridden strength, not the base code's
// default.
type SuggestedClassifier struct {
	log    *logrus.Logger
	config *domain.EngineConfig
}

// NewSuggestedClassifier creates a new suggested classifier.
func NewSuggestedClassifier(config *domain.EngineConfig, logger *logrus.Logger) *SuggestedClassifier {
	return &SuggestedClassifier{
		log:    logger,
		config: config,
	}
}

// Suggest computes the suggested classification value for the included codes.
// Returns the empty string when no codes are included.
func (s *SuggestedClassifier) Suggest(included []domain.ACMGEntry) string {
	if len(included) == 0 {
		return ""
	}

	counts := make(map[string]int)
	for _, entry := range included {
		counts[domain.ParseCode(entry.Code).Strength()]++
	}

	suggestion := s.combine(counts)

	s.log.WithFields(logrus.Fields{
		"included":   len(included),
		"suggestion": suggestion,
	}).Debug("Computed suggested classification")

	return suggestion
}

// combine applies the ACMG/AMP combination rules to strength counts and maps
// the outcome onto the configured classification values.
func (s *SuggestedClassifier) combine(counts map[string]int) string {
	pvs := counts["PVS"]
	ps := counts["PS"]
	pm := counts["PM"]
	pp := counts["PP"]

	ba := counts["BA"] // standalone
	bs := counts["BS"]
	bp := counts["BP"]

	// Pathogenic
	if (pvs >= 1 && (ps >= 1 || pm >= 2 || (pm >= 1 && pp >= 1) || pp >= 2)) ||
		(ps >= 2) ||
		(ps >= 1 && (pm >= 3 || (pm >= 2 && pp >= 2) || (pm >= 1 && pp >= 4))) {
		return "5"
	}

	// Likely pathogenic
	if (pvs >= 1 && pm >= 1) ||
		(ps >= 1 && pm >= 1) ||
		(ps >= 1 && pp >= 2) ||
		(pm >= 3) ||
		(pm >= 2 && pp >= 2) ||
		(pm >= 1 && pp >= 4) {
		return "4"
	}

	// Benign
	if ba >= 1 || bs >= 2 {
		return "1"
	}

	// Likely benign
	if (bs >= 1 && bp >= 1) || bp >= 2 {
		return "2"
	}

	// Uncertain significance when criteria conflict or fall short
	return "3"
}
