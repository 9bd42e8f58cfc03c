package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// Session guards a user's editing round. All state mutation goes through
// Mutate, which enforces the read-only predicate and tracks dirtiness so the
// caller knows when the state needs persisting.
type Session struct {
	log    *logrus.Logger
	interp *domain.Interpretation
	userID int64

	mu    sync.Mutex
	dirty bool
}

// NewSession wraps an interpretation round for the given user.
func NewSession(interp *domain.Interpretation, userID int64, logger *logrus.Logger) *Session {
	return &Session{
		log:    logger,
		interp: interp,
		userID: userID,
	}
}

// Interpretation returns the wrapped round.
func (s *Session) Interpretation() *domain.Interpretation {
	return s.interp
}

// ReadOnly reports whether the session may not mutate state: no round, a
// round that is not ongoing, or a round owned by another user.
func (s *Session) ReadOnly() bool {
	if s.interp == nil {
		return true
	}
	if s.interp.Status != domain.ONGOING {
		return true
	}
	return s.interp.UserID != s.userID
}

// Mutate applies fn to the round's state under the session lock. It returns
// ErrReadOnly without calling fn when the session is read-only, and marks
// the session dirty when fn succeeds.
func (s *Session) Mutate(fn func(*domain.InterpretationState) error) error {
	if s.ReadOnly() {
		return domain.ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.interp.State); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Dirty reports whether the state has unsaved mutations.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// MarkPersisted clears the dirty flag after a successful save.
func (s *Session) MarkPersisted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// PersistAndRun saves dirty state through persist before running action.
// The action never sees unsaved state: a persist failure aborts before the
// action runs.
func (s *Session) PersistAndRun(ctx context.Context, persist func(context.Context, *domain.Interpretation) error, action func(context.Context) error) error {
	if s.Dirty() {
		if err := persist(ctx, s.interp); err != nil {
			return err
		}
		s.MarkPersisted()
	}
	return action(ctx)
}

// CommentDebouncer coalesces rapid comment edits so only the latest text is
// flushed. A newer edit for the same target replaces the pending one, and
// the timer restarts.
type CommentDebouncer struct {
	log      *logrus.Logger
	interval time.Duration
	flush    func(target string, text string)

	mu      sync.Mutex
	pending map[string]string
	timers  map[string]*time.Timer
}

// NewCommentDebouncer creates a debouncer flushing through fn after each
// quiet interval.
func NewCommentDebouncer(interval time.Duration, fn func(target string, text string), logger *logrus.Logger) *CommentDebouncer {
	return &CommentDebouncer{
		log:      logger,
		interval: interval,
		flush:    fn,
		pending:  make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
}

// Update records the latest text for target and restarts its timer.
func (d *CommentDebouncer) Update(target string, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[target] = text
	if timer, ok := d.timers[target]; ok {
		timer.Stop()
	}
	d.timers[target] = time.AfterFunc(d.interval, func() {
		d.flushTarget(target)
	})
}

// Flush immediately flushes all pending edits. Called before save and
// finish actions so no typed text is lost.
func (d *CommentDebouncer) Flush() {
	d.mu.Lock()
	targets := make([]string, 0, len(d.pending))
	for target := range d.pending {
		targets = append(targets, target)
	}
	d.mu.Unlock()
	for _, target := range targets {
		d.flushTarget(target)
	}
}

// Stop cancels all timers and discards pending edits.
func (d *CommentDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, timer := range d.timers {
		timer.Stop()
	}
	d.timers = make(map[string]*time.Timer)
	d.pending = make(map[string]string)
}

func (d *CommentDebouncer) flushTarget(target string) {
	d.mu.Lock()
	text, ok := d.pending[target]
	if ok {
		delete(d.pending, target)
		if timer, present := d.timers[target]; present {
			timer.Stop()
			delete(d.timers, target)
		}
	}
	d.mu.Unlock()
	if ok {
		d.flush(target, text)
	}
}

// SuggestionTracker discards stale suggestion computations. Each edit that
// invalidates the suggested classification bumps the generation; a
// completion carrying an older generation is dropped silently.
type SuggestionTracker struct {
	mu         sync.Mutex
	generation uint64
}

// Begin marks the start of a new suggestion computation and returns its
// generation token.
func (t *SuggestionTracker) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	return t.generation
}

// Complete applies the computed suggestion only if no newer computation has
// begun. It reports whether the result was applied.
func (t *SuggestionTracker) Complete(generation uint64, apply func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return false
	}
	apply()
	return true
}

// LoadedData is the merged result of the parallel resource fetches backing a
// workflow view. Each part fails independently and records its own error.
type LoadedData struct {
	Alleles          map[int64]*domain.Allele
	References       map[int64]*domain.Reference
	Collisions       []domain.Collision
	AnnotationConfig *domain.AnnotationConfig

	AlleleErr           error
	ReferenceErr        error
	CollisionErr        error
	AnnotationConfigErr error
}

// WorkflowLoader fetches the resources a workflow view needs. Alleles load
// first (the other parts key off them); the remaining fetches run
// concurrently and fail independently, so one failed part leaves the others
// usable. Optional fetchers may be nil.
type WorkflowLoader struct {
	log *logrus.Logger

	FetchAlleles          func(ctx context.Context, interp *domain.Interpretation) (map[int64]*domain.Allele, error)
	FetchReferences       func(ctx context.Context, alleles map[int64]*domain.Allele) (map[int64]*domain.Reference, error)
	FetchCollisions       func(ctx context.Context, alleles map[int64]*domain.Allele) ([]domain.Collision, error)
	FetchAnnotationConfig func(ctx context.Context, interp *domain.Interpretation) (*domain.AnnotationConfig, error)
}

// NewWorkflowLoader creates a loader with the two mandatory fetch functions.
// Collision and annotation-config fetchers are assigned directly when the
// deployment provides them.
func NewWorkflowLoader(fetchAlleles func(context.Context, *domain.Interpretation) (map[int64]*domain.Allele, error), fetchReferences func(context.Context, map[int64]*domain.Allele) (map[int64]*domain.Reference, error), logger *logrus.Logger) *WorkflowLoader {
	return &WorkflowLoader{
		log:             logger,
		FetchAlleles:    fetchAlleles,
		FetchReferences: fetchReferences,
	}
}

// Load fetches alleles, then the dependent parts for those alleles. Errors
// are recorded per part rather than aborting the load.
func (l *WorkflowLoader) Load(ctx context.Context, interp *domain.Interpretation) *LoadedData {
	data := &LoadedData{
		Alleles:    map[int64]*domain.Allele{},
		References: map[int64]*domain.Reference{},
	}

	alleles, err := l.FetchAlleles(ctx, interp)
	if err != nil {
		data.AlleleErr = err
		l.log.WithError(err).Error("Failed to load alleles")
		return data
	}
	data.Alleles = alleles

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		refs, err := l.FetchReferences(ctx, alleles)
		if err != nil {
			data.ReferenceErr = err
			l.log.WithError(err).Error("Failed to load references")
			return
		}
		data.References = refs
	}()

	if l.FetchCollisions != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collisions, err := l.FetchCollisions(ctx, alleles)
			if err != nil {
				data.CollisionErr = err
				l.log.WithError(err).Error("Failed to load collisions")
				return
			}
			data.Collisions = collisions
		}()
	}

	if l.FetchAnnotationConfig != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg, err := l.FetchAnnotationConfig(ctx, interp)
			if err != nil {
				data.AnnotationConfigErr = err
				l.log.WithError(err).Error("Failed to load annotation config")
				return
			}
			data.AnnotationConfig = cfg
		}()
	}

	wg.Wait()

	return data
}

// Engine bundles the workflow components behind a single facade so callers
// wire one dependency instead of six.
type Engine struct {
	log *logrus.Logger

	ACMG           *ACMGCodeEngine
	Classification *ClassificationComputer
	Suggested      *SuggestedClassifier
	References     *ReferenceAssessmentManager
	Sorting        *AlleleSortEngine
	Workflow       *WorkflowStatusMachine
	Finalize       *FinalizePayloadBuilder
}

// NewEngine wires the workflow components against a shared config and logger.
func NewEngine(config *domain.EngineConfig, logger *logrus.Logger) *Engine {
	classification := NewClassificationComputer(config, logger)
	return &Engine{
		log:            logger,
		ACMG:           NewACMGCodeEngine(config, logger),
		Classification: classification,
		Suggested:      NewSuggestedClassifier(config, logger),
		References:     NewReferenceAssessmentManager(config, logger),
		Sorting:        NewAlleleSortEngine(config, classification, logger),
		Workflow:       NewWorkflowStatusMachine(config, logger),
		Finalize:       NewFinalizePayloadBuilder(config, logger),
	}
}

// DerivedState is the recomputed view produced after edits: resolved
// classifications, sort order and finalize eligibility.
type DerivedState struct {
	Classifications map[int64]string
	SortedAlleleIDs []int64
	FinalizeErr     error
}

// RecomputeDerived runs one derived recomputation pass after a batch of
// merged edits: classification resolution, default sort order and finalize
// eligibility.
func (e *Engine) RecomputeDerived(interp *domain.Interpretation, alleles map[int64]*domain.Allele) *DerivedState {
	derived := &DerivedState{
		Classifications: make(map[int64]string, len(alleles)),
	}

	items := make([]SortItem, 0, len(alleles))
	for id, allele := range alleles {
		if !interp.InScope(id) {
			continue
		}
		state := interp.State.Allele[id]
		derived.Classifications[id] = e.Classification.Classification(allele, state)
		items = append(items, SortItem{Allele: allele, State: state})
	}

	e.Sorting.Sort(items, SortInheritance, false)
	derived.SortedAlleleIDs = make([]int64, 0, len(items))
	for _, item := range items {
		derived.SortedAlleleIDs = append(derived.SortedAlleleIDs, item.Allele.ID)
	}

	derived.FinalizeErr = e.Workflow.CanFinalize(interp)
	return derived
}
