package service

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// SortKey identifies an allele ordering for display.
type SortKey string

const (
	SortInheritance    SortKey = "inheritance"
	SortGene           SortKey = "gene"
	SortPosition       SortKey = "position"
	SortConsequence    SortKey = "consequence"
	SortHomozygous     SortKey = "homozygous"
	SortQuality        SortKey = "quality"
	SortReferences     SortKey = "references"
	SortClassification SortKey = "classification"
)

// codingPositionPattern extracts the numeric position from short HGVS c. or
// g. notation, including UTR positions ("c.-12", "c.*45").
var codingPositionPattern = regexp.MustCompile(`[cg]\.([\-*]?)(\d+)`)

// utrDownstreamOffset pushes 3'UTR positions ("c.*N") past any coding
// position.
const utrDownstreamOffset = int64(1_000_000_000)

// AlleleSortEngine orders and filters a variant collection for display. The
// default ordering is inheritance, then gene, then coding position; explicit
// keys are primary with the default chain as tie-break.
type AlleleSortEngine struct {
	log            *logrus.Logger
	config         *domain.EngineConfig
	classification *ClassificationComputer
}

// NewAlleleSortEngine creates a new sort engine.
func NewAlleleSortEngine(config *domain.EngineConfig, classification *ClassificationComputer, logger *logrus.Logger) *AlleleSortEngine {
	return &AlleleSortEngine{
		log:            logger,
		config:         config,
		classification: classification,
	}
}

// SortItem pairs an allele with its working state for ordering.
type SortItem struct {
	Allele *domain.Allele
	State  *domain.AlleleState
}

// Sort orders items by the given key (descending when reverse), then by the
// default tie-break chain. An empty key applies the default ordering only.
// Sorting is stable and deterministic across runs.
func (e *AlleleSortEngine) Sort(items []SortItem, key SortKey, reverse bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if key != "" {
			if c := e.compare(items[i], items[j], key); c != 0 {
				if reverse {
					return c > 0
				}
				return c < 0
			}
		}
		return e.defaultLess(items[i], items[j])
	})
}

// PartitionClassified splits items into classified and unclassified, where
// classified means the classification computer resolves a non-empty value.
// Relative order within each partition is preserved.
func (e *AlleleSortEngine) PartitionClassified(items []SortItem) (classified, unclassified []SortItem) {
	for _, item := range items {
		if e.classification.IsClassified(item.Allele, item.State) {
			classified = append(classified, item)
		} else {
			unclassified = append(unclassified, item)
		}
	}
	return classified, unclassified
}

func (e *AlleleSortEngine) defaultLess(a, b SortItem) bool {
	for _, key := range []SortKey{SortInheritance, SortGene, SortPosition} {
		if c := e.compare(a, b, key); c != 0 {
			return c < 0
		}
	}
	return false
}

// compare returns a negative, zero or positive value ordering a before,
// equal to, or after b on the given key.
func (e *AlleleSortEngine) compare(a, b SortItem, key SortKey) int {
	switch key {
	case SortInheritance:
		return strings.Compare(inheritanceKey(a.Allele), inheritanceKey(b.Allele))
	case SortGene:
		return strings.Compare(geneKey(a.Allele), geneKey(b.Allele))
	case SortPosition:
		return compareInt64(codingPosition(a.Allele), codingPosition(b.Allele))
	case SortConsequence:
		return compareInt(e.consequenceKey(a.Allele), e.consequenceKey(b.Allele))
	case SortHomozygous:
		return compareInt(homozygousKey(a.Allele), homozygousKey(b.Allele))
	case SortQuality:
		return compareInt(qualityKey(a), qualityKey(b))
	case SortReferences:
		// More attached references sort first.
		return compareInt(-len(a.Allele.Annotation.References), -len(b.Allele.Annotation.References))
	case SortClassification:
		return e.compareClassification(a, b)
	default:
		return 0
	}
}

// compareClassification orders technical-flagged alleles after all
// non-technical ones regardless of classification, then by classification
// strength descending per the configured option order.
func (e *AlleleSortEngine) compareClassification(a, b SortItem) int {
	if c := compareInt(technicalKey(a), technicalKey(b)); c != 0 {
		return c
	}
	aIdx := e.config.Classification.StrengthIndex(e.classification.RawClassification(a.Allele, a.State))
	bIdx := e.config.Classification.StrengthIndex(e.classification.RawClassification(b.Allele, b.State))
	return compareInt(aIdx, bIdx)
}

// inheritanceKey normalizes inheritance so autosomal dominant sorts first.
func inheritanceKey(allele *domain.Allele) string {
	inh := allele.Annotation.Inheritance
	if inh == "AD" {
		return "0"
	}
	if inh == "" {
		return "2"
	}
	return "1" + inh
}

func geneKey(allele *domain.Allele) string {
	transcripts := allele.FilteredTranscriptAnnotations()
	if len(transcripts) == 0 {
		return ""
	}
	return strings.ToLower(transcripts[0].Symbol)
}

// codingPosition parses the numeric position out of the first filtered
// transcript's short HGVS notation. 5'UTR positions sort before the coding
// sequence, 3'UTR positions after it; alleles without parseable notation
// sort last.
func codingPosition(allele *domain.Allele) int64 {
	transcripts := allele.FilteredTranscriptAnnotations()
	for _, t := range transcripts {
		if pos, ok := parseCodingPosition(t.HGVSc); ok {
			return pos
		}
	}
	return math.MaxInt64
}

func parseCodingPosition(hgvsc string) (int64, bool) {
	m := codingPositionPattern.FindStringSubmatch(hgvsc)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, false
	}
	switch m[1] {
	case "-":
		return -n, true
	case "*":
		return utrDownstreamOffset + n, true
	default:
		return n, true
	}
}

// consequenceKey returns the worst (lowest) priority index across all
// filtered transcript consequences.
func (e *AlleleSortEngine) consequenceKey(allele *domain.Allele) int {
	worst := len(e.config.ConsequencePriority)
	for _, t := range allele.FilteredTranscriptAnnotations() {
		for _, cons := range t.Consequences {
			for i, priority := range e.config.ConsequencePriority {
				if cons == priority && i < worst {
					worst = i
				}
			}
		}
	}
	return worst
}

func homozygousKey(allele *domain.Allele) int {
	if allele.GenotypeType == "Homozygous" {
		return 0
	}
	return 1
}

// qualityKey surfaces calls needing attention first: technical artifacts,
// then calls flagged for verification.
func qualityKey(item SortItem) int {
	if technicalKey(item) == 1 {
		return 0
	}
	if item.Allele.NeedsVerification {
		return 1
	}
	return 2
}

func technicalKey(item SortItem) int {
	if item.State != nil && item.State.Analysis.Verification == domain.TECHNICAL {
		return 1
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
