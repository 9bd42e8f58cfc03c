// Package service implements the variant interpretation workflow engine:
// evidence code management, classification derivation, reference assessment
// resolution, allele ordering, workflow transitions and finalize payload
// construction.
package service

import (
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// ACMGCodeEngine manages the included evidence codes of an allele assessment:
// adding and removing codes, and moving a code along its category's strength
// ladder. Included codes are mutually exclusive at the base-code level.
type ACMGCodeEngine struct {
	log    *logrus.Logger
	config *domain.EngineConfig
}

// NewACMGCodeEngine creates a new ACMG code engine.
func NewACMGCodeEngine(config *domain.EngineConfig, logger *logrus.Logger) *ACMGCodeEngine {
	return &ACMGCodeEngine{
		log:    logger,
		config: config,
	}
}

// AddCode appends a new included code to the assessment. The entry's code may
// carry a strength override; match, op and source are taken from the given
// entry. Fails with DuplicateCodeError when any included entry shares the same
// base code, before any state is modified.
func (e *ACMGCodeEngine) AddCode(state *domain.AlleleState, entry domain.ACMGEntry) (*domain.ACMGEntry, error) {
	for _, existing := range state.AlleleAssessment.Evaluation.ACMG.Included {
		if domain.SameBase(existing.Code, entry.Code) {
			return nil, &domain.DuplicateCodeError{Code: entry.Code, Existing: existing.Code}
		}
	}

	added := domain.ACMGEntry{
		UUID:    uuid.New().String(),
		Code:    entry.Code,
		Match:   entry.Match,
		Op:      entry.Op,
		Source:  entry.Source,
		Comment: "",
	}
	state.AlleleAssessment.Evaluation.ACMG.Included = append(
		state.AlleleAssessment.Evaluation.ACMG.Included, added)

	e.log.WithFields(logrus.Fields{
		"allele_id": state.AlleleID,
		"code":      added.Code,
		"uuid":      added.UUID,
	}).Info("Added ACMG code")

	last := &state.AlleleAssessment.Evaluation.ACMG.Included[len(state.AlleleAssessment.Evaluation.ACMG.Included)-1]
	return last, nil
}

// RemoveCode removes the included code identified by uuid. Fails with
// NotFoundError when the uuid is absent.
func (e *ACMGCodeEngine) RemoveCode(state *domain.AlleleState, entryUUID string) error {
	included := state.AlleleAssessment.Evaluation.ACMG.Included
	for i, entry := range included {
		if entry.UUID == entryUUID {
			state.AlleleAssessment.Evaluation.ACMG.Included = append(included[:i], included[i+1:]...)
			e.log.WithFields(logrus.Fields{
				"allele_id": state.AlleleID,
				"code":      entry.Code,
				"uuid":      entryUUID,
			}).Info("Removed ACMG code")
			return nil
		}
	}
	return &domain.NotFoundError{Kind: "acmg entry", ID: entryUUID}
}

// Upgrade moves the included code identified by uuid one rung up its
// category's strength ladder. For pathogenic codes that means more
// pathogenic; for benign codes more benign. At the strongest rung the code is
// returned unchanged.
func (e *ACMGCodeEngine) Upgrade(state *domain.AlleleState, entryUUID string) (string, error) {
	return e.adjust(state, entryUUID, true)
}

// Downgrade moves the included code one rung down its category's strength
// ladder. At the weakest rung the code is returned unchanged.
func (e *ACMGCodeEngine) Downgrade(state *domain.AlleleState, entryUUID string) (string, error) {
	return e.adjust(state, entryUUID, false)
}

func (e *ACMGCodeEngine) adjust(state *domain.AlleleState, entryUUID string, upgrade bool) (string, error) {
	included := state.AlleleAssessment.Evaluation.ACMG.Included
	for i, entry := range included {
		if entry.UUID == entryUUID {
			adjusted := e.AdjustStrength(entry.Code, upgrade)
			if adjusted != entry.Code {
				included[i].Code = adjusted
				e.log.WithFields(logrus.Fields{
					"allele_id": state.AlleleID,
					"from":      entry.Code,
					"to":        adjusted,
				}).Info("Adjusted ACMG code strength")
			}
			return adjusted, nil
		}
	}
	return "", &domain.NotFoundError{Kind: "acmg entry", ID: entryUUID}
}

// AdjustStrength computes the code one ladder rung away from the given code,
// toward the strong end when upgrade is true. Codes whose strength is not on
// the configured ladder, and moves past either ladder bound, return the input
// unchanged. The result collapses to the bare base code when the new strength
// equals the base code's own default strength.
func (e *ACMGCodeEngine) AdjustStrength(code string, upgrade bool) string {
	ref := domain.ParseCode(code)
	category := ref.Category()
	ladder := e.config.ACMG.Ladder(category)

	current := e.config.ACMG.LadderIndex(category, ref.Strength())
	if current < 0 {
		return code
	}

	next := current + 1
	if upgrade {
		next = current - 1
	}
	if next < 0 || next >= len(ladder) {
		return code
	}

	if ladder[next] == ref.BaseStrength() {
		return ref.Base
	}
	return ladder[next] + "x" + ref.Base
}

// SortByStrength orders code strings by category and strength: pathogenic
// codes first, each category ordered strongest first by ladder index, ties
// broken by lexical code order. The input is not modified.
func (e *ACMGCodeEngine) SortByStrength(codes []string) []string {
	var pathogenic, benign []string
	for _, code := range codes {
		if domain.ParseCode(code).Category() == domain.BENIGN_CODE {
			benign = append(benign, code)
		} else {
			pathogenic = append(pathogenic, code)
		}
	}

	e.sortPartition(pathogenic, domain.PATHOGENIC_CODE)
	e.sortPartition(benign, domain.BENIGN_CODE)

	return append(pathogenic, benign...)
}

func (e *ACMGCodeEngine) sortPartition(codes []string, category domain.CodeCategory) {
	index := func(code string) int {
		idx := e.config.ACMG.LadderIndex(category, domain.ParseCode(code).Strength())
		if idx < 0 {
			idx = len(e.config.ACMG.Ladder(category))
		}
		return idx
	}
	sort.SliceStable(codes, func(i, j int) bool {
		if index(codes[i]) != index(codes[j]) {
			return index(codes[i]) < index(codes[j])
		}
		return codes[i] < codes[j]
	})
}
