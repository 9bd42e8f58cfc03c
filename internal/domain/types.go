// Package domain contains the core entities and types for clinical variant
// interpretation workflows: interpretation rounds, per-allele working state,
// ACMG evidence codes and the payloads submitted when a round is finalized.
//
// Reference: Richards et al. (2015) Standards and guidelines for the
// interpretation of sequence variants. Genet Med. 17(5):405-24.
package domain

import "errors"

// InterpretationStatus tracks the lifecycle of one interpretation round.
type InterpretationStatus string

const (
	NOT_STARTED InterpretationStatus = "Not started"
	ONGOING     InterpretationStatus = "Ongoing"
	DONE        InterpretationStatus = "Done"
)

// WorkflowStatus is the sub-status of an interpretation round while work is
// in progress. FINALIZED is terminal for the round and moves the
// InterpretationStatus to DONE.
type WorkflowStatus string

const (
	NOT_READY      WorkflowStatus = "Not ready"
	INTERPRETATION WorkflowStatus = "Interpretation"
	REVIEW         WorkflowStatus = "Review"
	MEDICAL_REVIEW WorkflowStatus = "Medical review"
	FINALIZED      WorkflowStatus = "Finalized"
)

// WorkflowType distinguishes sample-level (analysis) workflows covering a set
// of alleles from single-variant (allele) workflows.
type WorkflowType string

const (
	ANALYSIS WorkflowType = "analysis"
	ALLELE   WorkflowType = "allele"
)

// Verification marks a variant call as a technical artifact or as verified.
type Verification string

const (
	TECHNICAL Verification = "technical"
	VERIFIED  Verification = "verified"
)

// Relevance is the structured relevance judgement of a reference evaluation.
type Relevance string

const (
	RELEVANCE_YES        Relevance = "Yes"
	RELEVANCE_INDIRECTLY Relevance = "Indirectly"
	RELEVANCE_NO         Relevance = "No"
	RELEVANCE_IGNORE     Relevance = "Ignore"
)

// Sentinel errors shared across the engine.
var (
	ErrNotFound = errors.New("not found")
	ErrReadOnly = errors.New("interpretation is read-only")
)

// IsValid validates the interpretation status.
func (s InterpretationStatus) IsValid() bool {
	switch s {
	case NOT_STARTED, ONGOING, DONE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s InterpretationStatus) String() string {
	return string(s)
}

// IsValid validates the workflow status.
func (ws WorkflowStatus) IsValid() bool {
	switch ws {
	case NOT_READY, INTERPRETATION, REVIEW, MEDICAL_REVIEW, FINALIZED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the workflow status.
func (ws WorkflowStatus) String() string {
	return string(ws)
}

// IsValid validates the workflow type.
func (wt WorkflowType) IsValid() bool {
	switch wt {
	case ANALYSIS, ALLELE:
		return true
	default:
		return false
	}
}

// IsValid validates the verification state. The empty value is allowed and
// means the call has not been assessed for verification.
func (v Verification) IsValid() bool {
	switch v {
	case "", TECHNICAL, VERIFIED:
		return true
	default:
		return false
	}
}

// IsValid validates the relevance value.
func (r Relevance) IsValid() bool {
	switch r {
	case RELEVANCE_YES, RELEVANCE_INDIRECTLY, RELEVANCE_NO, RELEVANCE_IGNORE:
		return true
	default:
		return false
	}
}
