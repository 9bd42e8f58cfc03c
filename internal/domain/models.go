package domain

import "time"

// Persisted backend records. These are immutable from the engine's
// perspective: prior assessments, reports and reference assessments are
// read-only history used for reuse.

// AlleleAssessment is a persisted clinical conclusion for an allele.
type AlleleAssessment struct {
	ID               int64                `json:"id"`
	AlleleID         int64                `json:"allele_id"`
	Classification   string               `json:"classification"`
	Evaluation       AssessmentEvaluation `json:"evaluation"`
	AttachmentIDs    []int64              `json:"attachment_ids,omitempty"`
	GenepanelName    string               `json:"genepanel_name,omitempty"`
	GenepanelVersion string               `json:"genepanel_version,omitempty"`
	AnalysisID       *int64               `json:"analysis_id,omitempty"`
	DateCreated      time.Time            `json:"date_created"`
	DateSuperceded   *time.Time           `json:"date_superceded,omitempty"`
}

// AlleleReport is a persisted report comment for an allele.
type AlleleReport struct {
	ID                 int64            `json:"id"`
	AlleleID           int64            `json:"allele_id"`
	Evaluation         ReportEvaluation `json:"evaluation"`
	AlleleAssessmentID *int64           `json:"alleleassessment_id,omitempty"`
	DateCreated        time.Time        `json:"date_created"`
	DateSuperceded     *time.Time       `json:"date_superceded,omitempty"`
}

// ReferenceAssessment is a persisted evaluation of one reference for one
// allele.
type ReferenceAssessment struct {
	ID             int64          `json:"id"`
	AlleleID       int64          `json:"allele_id"`
	ReferenceID    int64          `json:"reference_id"`
	Evaluation     map[string]any `json:"evaluation"`
	DateCreated    time.Time      `json:"date_created"`
	DateSuperceded *time.Time     `json:"date_superceded,omitempty"`
}

// Reference is a literature reference attached to alleles via annotation.
type Reference struct {
	ID        int64  `json:"id"`
	PubmedID  int64  `json:"pubmed_id"`
	Published bool   `json:"published"`
	Title     string `json:"title,omitempty"`
}

// Transcript carries the per-transcript annotation used for sorting and
// display.
type Transcript struct {
	Transcript   string   `json:"transcript"`
	Symbol       string   `json:"symbol"`
	HGVSc        string   `json:"HGVSc,omitempty"`
	HGVSp        string   `json:"HGVSp,omitempty"`
	Consequences []string `json:"consequences,omitempty"`
}

// AnnotationReference links an annotation to a literature reference.
type AnnotationReference struct {
	ID       int64 `json:"id,omitempty"`
	PubmedID int64 `json:"pubmed_id,omitempty"`
}

// Annotation is the resolved annotation for an allele.
type Annotation struct {
	AnnotationID        int64                 `json:"annotation_id"`
	CustomAnnotationID  *int64                `json:"custom_annotation_id,omitempty"`
	Transcripts         []Transcript          `json:"transcripts,omitempty"`
	FilteredTranscripts []string              `json:"filtered_transcripts,omitempty"`
	References          []AnnotationReference `json:"references,omitempty"`
	Inheritance         string                `json:"inheritance,omitempty"`
}

// Collision marks another ongoing round that currently holds one of the
// loaded alleles.
type Collision struct {
	AlleleID       int64          `json:"allele_id"`
	UserID         *int64         `json:"user_id,omitempty"`
	WorkflowType   WorkflowType   `json:"type"`
	WorkflowStatus WorkflowStatus `json:"workflow_status"`
}

// AnnotationConfig is the annotation view configuration active for a round.
type AnnotationConfig struct {
	ID   int64            `json:"id"`
	View []map[string]any `json:"view,omitempty"`
}

// Allele is a resolved backend allele record, carrying annotation and any
// prior assessment history.
type Allele struct {
	ID                   int64                 `json:"id"`
	Annotation           Annotation            `json:"annotation"`
	AlleleAssessment     *AlleleAssessment     `json:"allele_assessment,omitempty"`
	AlleleReport         *AlleleReport         `json:"allele_report,omitempty"`
	ReferenceAssessments []ReferenceAssessment `json:"reference_assessments,omitempty"`
	GenotypeType         string                `json:"genotype_type,omitempty"`
	NeedsVerification    bool                  `json:"needs_verification,omitempty"`
	Tags                 []string              `json:"tags,omitempty"`
}

// FilteredTranscriptAnnotations returns the transcript annotations selected by
// the transcript filter, falling back to all transcripts when no filter is
// set.
func (a *Allele) FilteredTranscriptAnnotations() []Transcript {
	if len(a.Annotation.FilteredTranscripts) == 0 {
		return a.Annotation.Transcripts
	}
	selected := make(map[string]bool, len(a.Annotation.FilteredTranscripts))
	for _, name := range a.Annotation.FilteredTranscripts {
		selected[name] = true
	}
	var out []Transcript
	for _, t := range a.Annotation.Transcripts {
		if selected[t.Transcript] {
			out = append(out, t)
		}
	}
	return out
}

// Mutable per-allele working state, living inside Interpretation.State.

// ACMGEntry is one included or suggested evidence code. Code is either a bare
// base code ("PM1") or a strength-overridden code ("PSxPM1").
type ACMGEntry struct {
	UUID    string   `json:"uuid"`
	Code    string   `json:"code"`
	Match   []string `json:"match,omitempty"`
	Op      string   `json:"op,omitempty"`
	Source  string   `json:"source,omitempty"`
	Comment string   `json:"comment"`
}

// ACMGEvaluation holds the evidence codes of an assessment in progress.
type ACMGEvaluation struct {
	Included                []ACMGEntry `json:"included"`
	Suggested               []ACMGEntry `json:"suggested,omitempty"`
	SuggestedClassification string      `json:"suggested_classification,omitempty"`
}

// SectionComment is the free-text comment of one evaluation section
// (classification, frequency, external, prediction, reference).
type SectionComment struct {
	Comment string `json:"comment"`
}

// AssessmentEvaluation is the structured evaluation of an allele assessment.
type AssessmentEvaluation struct {
	ACMG     ACMGEvaluation            `json:"acmg"`
	Sections map[string]SectionComment `json:"sections,omitempty"`
}

// ReportEvaluation is the evaluation of an allele report.
type ReportEvaluation struct {
	Comment string `json:"comment"`
}

// AlleleAssessmentState is the in-progress assessment for one allele. Reuse
// true means "defer to the persisted assessment"; any local edit must clear it.
type AlleleAssessmentState struct {
	Reuse          bool                 `json:"reuse"`
	ReuseCheckedID int64                `json:"reuse_checked_id,omitempty"`
	Classification string               `json:"classification,omitempty"`
	Evaluation     AssessmentEvaluation `json:"evaluation"`
	AttachmentIDs  []int64              `json:"attachment_ids,omitempty"`
}

// AlleleReportState is the in-progress report for one allele.
type AlleleReportState struct {
	Reuse      bool             `json:"reuse"`
	Evaluation ReportEvaluation `json:"evaluation"`
}

// ReferenceAssessmentState is the in-progress evaluation of one reference for
// one allele. When Reuse is set, ID references the persisted record being
// deferred to, and Evaluation is empty.
type ReferenceAssessmentState struct {
	ID          int64          `json:"id,omitempty"`
	ReferenceID int64          `json:"reference_id"`
	AlleleID    int64          `json:"allele_id"`
	Reuse       bool           `json:"reuse,omitempty"`
	Evaluation  map[string]any `json:"evaluation,omitempty"`
}

// AnalysisState carries sample-level flags for one allele. Only meaningful in
// analysis workflows.
type AnalysisState struct {
	Comment      string       `json:"comment,omitempty"`
	Verification Verification `json:"verification,omitempty"`
	NotRelevant  *bool        `json:"notrelevant,omitempty"`
}

// WorkflowState carries per-allele review bookkeeping.
type WorkflowState struct {
	Reviewed bool `json:"reviewed"`
}

// AlleleState is the unit of mutation: everything the current round has
// entered for one allele. Exactly one AlleleState exists per relevant allele
// id within an interpretation's state.
type AlleleState struct {
	AlleleID             int64                      `json:"allele_id"`
	AlleleAssessment     AlleleAssessmentState      `json:"alleleassessment"`
	AlleleReport         AlleleReportState          `json:"allelereport"`
	ReferenceAssessments []ReferenceAssessmentState `json:"referenceassessments,omitempty"`
	Analysis             AnalysisState              `json:"analysis"`
	Workflow             WorkflowState              `json:"workflow"`
}

// NewAlleleState creates the lazily-initialized state for an allele.
func NewAlleleState(alleleID int64) *AlleleState {
	return &AlleleState{AlleleID: alleleID}
}

// InterpretationState is the mutable state of an interpretation round,
// submitted at finish.
type InterpretationState struct {
	Allele           map[int64]*AlleleState `json:"allele,omitempty"`
	ManuallyIncluded []int64                `json:"manually_included_allele_ids,omitempty"`
}

// AlleleState returns the state for an allele, creating it on first use.
func (s *InterpretationState) AlleleState(alleleID int64) *AlleleState {
	if s.Allele == nil {
		s.Allele = make(map[int64]*AlleleState)
	}
	if st, ok := s.Allele[alleleID]; ok {
		return st
	}
	st := NewAlleleState(alleleID)
	s.Allele[alleleID] = st
	return st
}

// Interpretation is one round of work on an analysis or a single variant.
type Interpretation struct {
	ID                int64               `json:"id"`
	Type              WorkflowType        `json:"type"`
	Status            InterpretationStatus `json:"status"`
	WorkflowStatus    WorkflowStatus      `json:"workflow_status"`
	UserID            int64               `json:"user_id"`
	AnalysisID        *int64              `json:"analysis_id,omitempty"`
	AlleleID          *int64              `json:"allele_id,omitempty"`
	GenepanelName     string              `json:"genepanel_name"`
	GenepanelVersion  string              `json:"genepanel_version"`
	AlleleIDs         []int64             `json:"allele_ids,omitempty"`
	ExcludedAlleleIDs map[string][]int64  `json:"excluded_allele_ids,omitempty"`
	State             InterpretationState `json:"state"`
	UserState         map[string]any      `json:"user_state,omitempty"`
	DateCreated       time.Time           `json:"date_created"`
	DateLastUpdate    time.Time           `json:"date_last_update"`
	Finalized         bool                `json:"finalized,omitempty"`
}

// InScope reports whether an allele id belongs to this round, either through
// the regular scope or the manual-inclusion override list.
func (i *Interpretation) InScope(alleleID int64) bool {
	for _, id := range i.AlleleIDs {
		if id == alleleID {
			return true
		}
	}
	for _, id := range i.State.ManuallyIncluded {
		if id == alleleID {
			return true
		}
	}
	return false
}
