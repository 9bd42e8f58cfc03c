package service

import (
	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// autoIgnoreComment is stored on reference evaluations synthesized from the
// configured ignore list.
const autoIgnoreComment = "Automatically ignored per configuration"

// ReferenceAssessmentManager resolves, edits and auto-seeds the per-reference
// evaluations of an allele.
type ReferenceAssessmentManager struct {
	log    *logrus.Logger
	config *domain.EngineConfig
}

// NewReferenceAssessmentManager creates a new reference assessment manager.
func NewReferenceAssessmentManager(config *domain.EngineConfig, logger *logrus.Logger) *ReferenceAssessmentManager {
	return &ReferenceAssessmentManager{
		log:    logger,
		config: config,
	}
}

// ResolvedReference is the display view of one reference evaluation. ID is
// set when the resolution landed on a persisted record.
type ResolvedReference struct {
	ID          int64
	AlleleID    int64
	ReferenceID int64
	Evaluation  map[string]any
	Persisted   bool
}

// Resolve returns the reference assessment to display for (allele,
// reference), or nil when there is no data.
//
// When the owning allele assessment is reused the persisted entry is shown;
// a local non-reused edit made while the assessment was set to reuse is
// suppressed rather than displayed, since a deferred assessment must not
// surface unsaved edits. Without local state at all, a reused assessment
// still falls back to the persisted reference assessments.
func (m *ReferenceAssessmentManager) Resolve(allele *domain.Allele, state *domain.AlleleState, referenceID int64) *ResolvedReference {
	var local *domain.ReferenceAssessmentState
	if state != nil {
		for i := range state.ReferenceAssessments {
			entry := &state.ReferenceAssessments[i]
			if entry.ReferenceID == referenceID && entry.AlleleID == state.AlleleID {
				local = entry
				break
			}
		}
	}

	if state != nil && state.AlleleAssessment.Reuse {
		if local != nil && !local.Reuse {
			return nil
		}
		return m.resolvePersisted(allele, referenceID)
	}

	if local == nil {
		return nil
	}
	if local.Reuse {
		return m.resolvePersistedByID(allele, local.ID)
	}
	return &ResolvedReference{
		AlleleID:    local.AlleleID,
		ReferenceID: local.ReferenceID,
		Evaluation:  local.Evaluation,
	}
}

func (m *ReferenceAssessmentManager) resolvePersisted(allele *domain.Allele, referenceID int64) *ResolvedReference {
	if allele == nil {
		return nil
	}
	for _, ra := range allele.ReferenceAssessments {
		if ra.ReferenceID == referenceID {
			return &ResolvedReference{
				ID:          ra.ID,
				AlleleID:    ra.AlleleID,
				ReferenceID: ra.ReferenceID,
				Evaluation:  ra.Evaluation,
				Persisted:   true,
			}
		}
	}
	return nil
}

func (m *ReferenceAssessmentManager) resolvePersistedByID(allele *domain.Allele, id int64) *ResolvedReference {
	if allele == nil {
		return nil
	}
	for _, ra := range allele.ReferenceAssessments {
		if ra.ID == id {
			return &ResolvedReference{
				ID:          ra.ID,
				AlleleID:    ra.AlleleID,
				ReferenceID: ra.ReferenceID,
				Evaluation:  ra.Evaluation,
				Persisted:   true,
			}
		}
	}
	return nil
}

// ReferenceAssessmentUpdate carries a partial edit: a full evaluation, a
// comment, or both.
type ReferenceAssessmentUpdate struct {
	Evaluation map[string]any
	Comment    *string
}

// SetReferenceAssessment applies an edit to the (allele, reference) entry in
// state. An existing entry is merged: editing always clears reuse and drops
// the persisted id, and a comment-only edit copies the resolved existing
// evaluation first so structured fields are not erased. Creating a new entry
// requires an evaluation.
func (m *ReferenceAssessmentManager) SetReferenceAssessment(allele *domain.Allele, state *domain.AlleleState, referenceID int64, update ReferenceAssessmentUpdate) error {
	var existing *domain.ReferenceAssessmentState
	for i := range state.ReferenceAssessments {
		entry := &state.ReferenceAssessments[i]
		if entry.ReferenceID == referenceID && entry.AlleleID == state.AlleleID {
			existing = entry
			break
		}
	}

	if existing == nil {
		if update.Evaluation == nil {
			return domain.NewValidationError("evaluation",
				"an evaluation is required when creating a reference assessment", referenceID)
		}
		entry := domain.ReferenceAssessmentState{
			AlleleID:    state.AlleleID,
			ReferenceID: referenceID,
			Evaluation:  copyEvaluation(update.Evaluation),
		}
		if update.Comment != nil {
			entry.Evaluation["comment"] = *update.Comment
		}
		state.ReferenceAssessments = append(state.ReferenceAssessments, entry)
		m.log.WithFields(logrus.Fields{
			"allele_id":    state.AlleleID,
			"reference_id": referenceID,
		}).Info("Created reference assessment")
		return nil
	}

	if update.Evaluation != nil {
		existing.Evaluation = copyEvaluation(update.Evaluation)
	} else if existing.Evaluation == nil {
		// Comment-only edit: start from the resolved existing evaluation so
		// structured fields survive the partial update.
		if resolved := m.Resolve(allele, state, referenceID); resolved != nil {
			existing.Evaluation = copyEvaluation(resolved.Evaluation)
		} else {
			existing.Evaluation = map[string]any{}
		}
	}
	if update.Comment != nil {
		if existing.Evaluation == nil {
			existing.Evaluation = map[string]any{}
		}
		existing.Evaluation["comment"] = *update.Comment
	}

	// Any local edit atomically breaks the reuse link.
	existing.Reuse = false
	existing.ID = 0

	m.log.WithFields(logrus.Fields{
		"allele_id":    state.AlleleID,
		"reference_id": referenceID,
	}).Info("Updated reference assessment")
	return nil
}

// AttachedReferenceIDs computes the reference ids currently attached to an
// allele: those referenced by its annotation plus any carried by persisted
// reference assessments. References whose pubmed id is known but whose record
// id is not are mapped through the byPubmed index.
func AttachedReferenceIDs(allele *domain.Allele, byPubmed map[int64]*domain.Reference) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, ref := range allele.Annotation.References {
		if ref.ID != 0 {
			add(ref.ID)
		} else if r, ok := byPubmed[ref.PubmedID]; ok {
			add(r.ID)
		}
	}
	for _, ra := range allele.ReferenceAssessments {
		add(ra.ReferenceID)
	}
	return ids
}

// AutoIgnoreReferences seeds an Ignore evaluation for every attached
// reference whose pubmed id is on the configured ignore list and which has no
// reference assessment in the current state. Running it repeatedly is
// idempotent: existing entries are never duplicated. Returns the number of
// entries created.
func (m *ReferenceAssessmentManager) AutoIgnoreReferences(interp *domain.Interpretation, alleles map[int64]*domain.Allele, references map[int64]*domain.Reference) int {
	ignored := make(map[int64]bool, len(m.config.IgnoreReferencePubmedIDs))
	for _, pmid := range m.config.IgnoreReferencePubmedIDs {
		ignored[pmid] = true
	}
	if len(ignored) == 0 {
		return 0
	}

	byPubmed := make(map[int64]*domain.Reference, len(references))
	for _, ref := range references {
		byPubmed[ref.PubmedID] = ref
	}

	created := 0
	for alleleID, allele := range alleles {
		if !interp.InScope(alleleID) {
			continue
		}
		state := interp.State.AlleleState(alleleID)

		existing := make(map[int64]bool, len(state.ReferenceAssessments))
		for _, entry := range state.ReferenceAssessments {
			existing[entry.ReferenceID] = true
		}

		for _, refID := range AttachedReferenceIDs(allele, byPubmed) {
			if existing[refID] {
				continue
			}
			ref, ok := references[refID]
			if !ok || !ignored[ref.PubmedID] {
				continue
			}
			state.ReferenceAssessments = append(state.ReferenceAssessments, domain.ReferenceAssessmentState{
				AlleleID:    alleleID,
				ReferenceID: refID,
				Evaluation: map[string]any{
					"relevance": string(domain.RELEVANCE_IGNORE),
					"comment":   autoIgnoreComment,
				},
			})
			created++
		}
	}

	if created > 0 {
		m.log.WithField("created", created).Info("Auto-ignored references")
	}
	return created
}

func copyEvaluation(evaluation map[string]any) map[string]any {
	out := make(map[string]any, len(evaluation))
	for k, v := range evaluation {
		out[k] = v
	}
	return out
}
