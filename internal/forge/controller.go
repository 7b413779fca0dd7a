package forge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"styleforge/internal/dna"
	"styleforge/internal/logging"
)

// Config wires one session's inputs and collaborators into a Controller.
// Zero-valued tuning fields (MaxIterations, Threshold, Weights) take
// variant defaults derived from Kind.
type Config struct {
	SessionID string
	Kind      dna.Kind
	Target    string
	Style     string // strategy selector, passed through to prompts verbatim

	Reference     []byte
	ReferenceMIME string

	MaxIterations int
	Threshold     float64
	Weights       *dna.WeightTable

	Extractor FeatureExtractor
	Generator CandidateGenerator
	Evaluator SimilarityEvaluator

	Cache    FeatureCache     // optional read-through reference cache
	Store    Store            // optional artifact persistence
	Progress *ProgressChannel // created when nil
}

// Controller drives one forge session through the
// generate→extract→evaluate→score→decide loop. A Controller runs exactly
// one session; Run may be called once.
type Controller struct {
	mu sync.RWMutex

	cfg      Config
	category dna.Category
	weights  dna.WeightTable
	progress *ProgressChannel

	// Session state
	state     SessionState
	reference Reference
	attempts  []*Attempt
	feedback  *Feedback

	// Best tracking
	bestScore     float64
	bestIteration int

	// Execution tracking
	isRunning  bool
	cancelFunc context.CancelFunc
	startedAt  time.Time
	finishedAt time.Time
	lastError  string
}

// NewController creates a controller for one session, applying variant
// defaults for any tuning field left at its zero value.
func NewController(cfg Config) *Controller {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Kind == "" {
		cfg.Kind = dna.KindTypeface
	}
	if cfg.MaxIterations <= 0 {
		if cfg.Kind == dna.KindIllustration {
			cfg.MaxIterations = IllustrationMaxIterations
		} else {
			cfg.MaxIterations = DefaultMaxIterations
		}
	}
	if cfg.Threshold <= 0 {
		if cfg.Kind == dna.KindIllustration {
			cfg.Threshold = IllustrationThreshold
		} else {
			cfg.Threshold = DefaultThreshold
		}
	}
	if cfg.Progress == nil {
		cfg.Progress = NewProgressChannel(BufferFor(cfg.MaxIterations))
	}

	category := dna.Classify(cfg.Target)
	weights := dna.WeightsFor(cfg.Kind, category)
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}

	return &Controller{
		cfg:      cfg,
		category: category,
		weights:  weights,
		progress: cfg.Progress,
		state:    SessionIdle,
	}
}

// SessionID returns the session identifier.
func (c *Controller) SessionID() string {
	return c.cfg.SessionID
}

// Progress returns the session's event stream for the reader side.
func (c *Controller) Progress() *ProgressChannel {
	return c.progress
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Cancel requests cooperative termination. The in-flight external call is
// cancelled through its context; the loop stops at the next checkpoint.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// Run executes the session to a terminal state. It blocks until the loop
// finishes and always returns a Result whose State is terminal; the error is
// non-nil only for fatal input errors. Run may be called once per
// Controller.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil, errors.New("session already running")
	}
	if c.state != SessionIdle {
		c.mu.Unlock()
		return nil, errors.New("session already finished")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.isRunning = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.isRunning = false
		c.cancelFunc = nil
		c.mu.Unlock()
	}()

	c.emit(EventSessionStarted, 0, "session started", map[string]any{
		"kind":           string(c.cfg.Kind),
		"target":         c.cfg.Target,
		"category":       string(c.category),
		"max_iterations": c.cfg.MaxIterations,
		"threshold":      c.cfg.Threshold,
	})
	logging.Forge("session %s started: kind=%s target=%q max=%d threshold=%.1f",
		c.cfg.SessionID, c.cfg.Kind, c.cfg.Target, c.cfg.MaxIterations, c.cfg.Threshold)

	if err := c.validateInputs(); err != nil {
		return c.fail(err), err
	}

	c.persistReference()
	c.transition(SessionExtracting)

	refDNA, description, cached := c.extractReference(ctx)
	if ctx.Err() != nil {
		c.setState(SessionCancelled)
		return c.finalize(), nil
	}

	c.mu.Lock()
	c.reference.DNA = refDNA
	c.reference.Description = description
	c.mu.Unlock()

	refMsg := "reference features extracted"
	if refDNA.IsDefault() {
		refMsg = "reference feature extraction failed; downstream scores are unreliable"
		logging.ForgeWarn("session %s: %s", c.cfg.SessionID, refMsg)
	}
	c.emit(EventReferenceReady, 0, refMsg, map[string]any{
		"default": refDNA.IsDefault(),
		"cached":  cached,
		"summary": refDNA.Summary,
	})

	c.transition(SessionIterating)
	c.iterate(ctx)

	return c.finalize(), nil
}

// validateInputs enforces the fatal preconditions: a session without a
// reference image, a target, or wired collaborators never iterates.
func (c *Controller) validateInputs() error {
	if len(c.cfg.Reference) == 0 {
		return errors.New("reference image required")
	}
	if strings.TrimSpace(c.cfg.Target) == "" {
		return errors.New("target specification required")
	}
	if !c.cfg.Kind.Valid() {
		return fmt.Errorf("unknown session kind %q", c.cfg.Kind)
	}
	if c.cfg.Extractor == nil || c.cfg.Generator == nil || c.cfg.Evaluator == nil {
		return errors.New("session collaborators not configured")
	}
	if err := c.weights.Validate(); err != nil {
		return fmt.Errorf("invalid weight table: %w", err)
	}
	return nil
}

// persistReference stores the reference image when a store is configured.
// Persistence failures never fail the session.
func (c *Controller) persistReference() {
	if c.cfg.Store == nil {
		return
	}
	path, err := c.cfg.Store.SaveReference(c.cfg.SessionID, c.cfg.Reference, c.cfg.ReferenceMIME)
	if err != nil {
		logging.ForgeWarn("session %s: failed to persist reference: %v", c.cfg.SessionID, err)
		return
	}
	c.mu.Lock()
	c.reference.ImagePath = path
	c.reference.ImageMIME = c.cfg.ReferenceMIME
	c.mu.Unlock()
}

// referenceKey derives the cache key from image identity and session kind.
func referenceKey(kind dna.Kind, image []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}

// extractReference obtains the reference DNA and style description, from
// cache when possible, otherwise with both extraction calls running
// concurrently. Extraction failure is non-fatal: the default record is
// substituted and never cached.
func (c *Controller) extractReference(ctx context.Context) (dna.DNA, string, bool) {
	key := referenceKey(c.cfg.Kind, c.cfg.Reference)
	if c.cfg.Cache != nil {
		if d, desc, ok := c.cfg.Cache.Get(key); ok {
			logging.ForgeDebug("session %s: reference features served from cache", c.cfg.SessionID)
			return d, desc, true
		}
	}

	var (
		refDNA  dna.DNA
		desc    string
		dnaErr  error
		descErr error
	)
	timer := logging.StartTimer(logging.CategoryForge, "reference extraction")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refDNA, dnaErr = c.cfg.Extractor.ExtractDNA(gctx, c.cfg.Reference, c.cfg.ReferenceMIME, c.cfg.Kind, c.category)
		return nil // extraction failure is non-fatal, handled below
	})
	g.Go(func() error {
		desc, descErr = c.cfg.Extractor.DescribeStyle(gctx, c.cfg.Reference, c.cfg.ReferenceMIME)
		return nil
	})
	if err := g.Wait(); err != nil {
		logging.ForgeWarn("session %s: reference extraction group: %v", c.cfg.SessionID, err)
	}
	timer.Stop()

	if dnaErr != nil {
		logging.ForgeWarn("session %s: reference DNA extraction failed: %v", c.cfg.SessionID, dnaErr)
		refDNA = dna.Default(c.cfg.Kind)
	}
	if descErr != nil {
		logging.ForgeDebug("session %s: style description failed: %v", c.cfg.SessionID, descErr)
		desc = ""
	}
	if dnaErr == nil && c.cfg.Cache != nil {
		c.cfg.Cache.Put(key, refDNA, desc)
	}
	return refDNA, desc, false
}

// iterate runs the loop body until convergence, exhaustion, or cancellation.
func (c *Controller) iterate(ctx context.Context) {
	for i := 1; i <= c.cfg.MaxIterations; i++ {
		// Cooperative checkpoints at the iteration boundary.
		if ctx.Err() != nil {
			c.setState(SessionCancelled)
			return
		}
		if c.progress.Disconnected() {
			logging.Forge("session %s: reader disconnected, winding down", c.cfg.SessionID)
			c.setState(SessionCancelled)
			return
		}

		attempt := &Attempt{
			Index:     i,
			Status:    AttemptPending,
			StartedAt: time.Now(),
		}
		c.mu.Lock()
		c.attempts = append(c.attempts, attempt)
		c.mu.Unlock()

		c.emit(EventIterationStarted, i, fmt.Sprintf("iteration %d of %d", i, c.cfg.MaxIterations), nil)

		if cancelled := c.runAttempt(ctx, attempt); cancelled {
			c.setState(SessionCancelled)
			return
		}

		if attempt.Status != AttemptComplete {
			// Failed attempts consume budget and carry the previous
			// feedback forward unchanged.
			continue
		}

		c.mu.Lock()
		if attempt.Composite > c.bestScore {
			c.bestScore = attempt.Composite
			c.bestIteration = attempt.Index
		}
		c.feedback = &Feedback{
			Iteration: attempt.Index,
			Score:     attempt.Composite,
			Critique:  attempt.Critique,
			Preserved: attempt.Preserved,
			Lost:      attempt.Lost,
		}
		c.mu.Unlock()

		if attempt.Composite >= c.cfg.Threshold && !attempt.Fallback {
			logging.Forge("session %s: converged at iteration %d with %.1f",
				c.cfg.SessionID, attempt.Index, attempt.Composite)
			c.setState(SessionConverged)
			return
		}
	}
	c.setState(SessionExhausted)
}

// runAttempt executes generation, extraction, and evaluation for one
// attempt. It reports true when the controlling context was cancelled
// mid-attempt; any other failure marks the attempt Failed and lets the loop
// continue.
func (c *Controller) runAttempt(ctx context.Context, a *Attempt) (cancelled bool) {
	c.setAttemptStatus(a, AttemptGenerating)

	genStart := time.Now()
	cand, err := c.cfg.Generator.Generate(ctx, GenerateRequest{
		Kind:           c.cfg.Kind,
		Target:         c.cfg.Target,
		Style:          c.cfg.Style,
		Category:       c.category,
		ReferenceImage: c.cfg.Reference,
		ReferenceMIME:  c.cfg.ReferenceMIME,
		ReferenceDNA:   c.referenceDNA(),
		Description:    c.referenceDescription(),
		Feedback:       c.currentFeedback(),
		Iteration:      a.Index,
	})
	c.mu.Lock()
	a.GenMillis = time.Since(genStart).Milliseconds()
	c.mu.Unlock()

	if ctx.Err() != nil {
		c.markFailed(a, fmt.Errorf("cancelled during generation: %w", ctx.Err()), false)
		return true
	}
	if err == nil && (cand == nil || len(cand.Data) == 0) {
		err = errors.New("generator returned no image")
	}
	if err != nil {
		c.markFailed(a, fmt.Errorf("generation failed: %w", err), true)
		return false
	}

	c.mu.Lock()
	a.image = cand.Data
	a.ImageMIME = cand.MIME
	a.Status = AttemptGenerated
	c.mu.Unlock()

	if c.cfg.Store != nil {
		path, serr := c.cfg.Store.SaveCandidate(c.cfg.SessionID, a.Index, cand.Data, cand.MIME)
		if serr != nil {
			logging.ForgeWarn("session %s: failed to persist candidate %d: %v", c.cfg.SessionID, a.Index, serr)
		} else {
			c.mu.Lock()
			a.ImagePath = path
			c.mu.Unlock()
		}
	}

	// The caller sees the candidate as soon as it exists, before any
	// evaluation verdict.
	c.emit(EventCandidateReady, a.Index, "candidate image produced", map[string]any{
		"generation_ms": a.GenMillis,
		"image_path":    a.ImagePath,
		"mime":          a.ImageMIME,
	})

	c.setAttemptStatus(a, AttemptEvaluating)
	evalStart := time.Now()

	candDNA, err := c.cfg.Extractor.ExtractDNA(ctx, cand.Data, cand.MIME, c.cfg.Kind, c.category)
	if ctx.Err() != nil {
		c.markFailed(a, fmt.Errorf("cancelled during candidate extraction: %w", ctx.Err()), false)
		return true
	}
	dnaDefault := false
	if err != nil {
		logging.ForgeWarn("session %s: candidate DNA extraction failed at iteration %d: %v",
			c.cfg.SessionID, a.Index, err)
		candDNA = dna.Default(c.cfg.Kind)
		dnaDefault = true
	}
	c.mu.Lock()
	a.CandidateDNA = &candDNA
	a.CandidateDNADefault = dnaDefault
	c.mu.Unlock()

	eval, err := c.cfg.Evaluator.Evaluate(ctx, EvaluateRequest{
		Kind:           c.cfg.Kind,
		Target:         c.cfg.Target,
		ReferenceImage: c.cfg.Reference,
		ReferenceMIME:  c.cfg.ReferenceMIME,
		CandidateImage: cand.Data,
		CandidateMIME:  cand.MIME,
	})
	c.mu.Lock()
	a.EvalMillis = time.Since(evalStart).Milliseconds()
	c.mu.Unlock()

	if ctx.Err() != nil {
		c.markFailed(a, fmt.Errorf("cancelled during evaluation: %w", ctx.Err()), false)
		return true
	}
	if err != nil {
		c.markFailed(a, fmt.Errorf("evaluation failed: %w", err), true)
		return false
	}

	dnaScore := dna.Compare(c.referenceDNA(), candDNA, c.weights)
	composite := Composite(eval.Visual, eval.Accuracy, dnaScore, eval.Fallback)

	c.mu.Lock()
	a.Visual = clamp100(eval.Visual)
	a.Accuracy = clamp100(eval.Accuracy)
	a.DNAScore = dnaScore
	a.Composite = composite
	a.Fallback = eval.Fallback
	a.Preserved = eval.Preserved
	a.Lost = eval.Lost
	a.Critique = eval.Critique
	a.Status = AttemptComplete
	a.FinishedAt = time.Now()
	c.mu.Unlock()

	logging.Forge("session %s: iteration %d scored %.1f (visual=%.1f accuracy=%.1f dna=%.1f fallback=%v)",
		c.cfg.SessionID, a.Index, composite, eval.Visual, eval.Accuracy, dnaScore, eval.Fallback)

	c.emit(EventIterationEvaluated, a.Index, "candidate evaluated", map[string]any{
		"visual_score":          a.Visual,
		"accuracy_score":        a.Accuracy,
		"dna_score":             a.DNAScore,
		"composite_score":       a.Composite,
		"generic_fallback":      a.Fallback,
		"preserved":             a.Preserved,
		"lost":                  a.Lost,
		"critique":              a.Critique,
		"candidate_dna_default": a.CandidateDNADefault,
		"evaluation_ms":         a.EvalMillis,
	})

	c.persistEvaluation(a)
	return false
}

// persistEvaluation writes the per-iteration evaluation document.
func (c *Controller) persistEvaluation(a *Attempt) {
	if c.cfg.Store == nil {
		return
	}
	doc := &EvaluationDocument{
		SessionID:    c.cfg.SessionID,
		Iteration:    a.Index,
		Kind:         c.cfg.Kind,
		Target:       c.cfg.Target,
		Visual:       a.Visual,
		Accuracy:     a.Accuracy,
		DNAScore:     a.DNAScore,
		Composite:    a.Composite,
		Fallback:     a.Fallback,
		Preserved:    a.Preserved,
		Lost:         a.Lost,
		Critique:     a.Critique,
		ReferenceDNA: c.referenceDNA(),
		CandidateDNA: a.CandidateDNA,
		CreatedAt:    time.Now(),
	}
	if err := c.cfg.Store.SaveEvaluation(doc); err != nil {
		logging.ForgeWarn("session %s: failed to persist evaluation %d: %v", c.cfg.SessionID, a.Index, err)
	}
}

// markFailed moves an attempt to its terminal Failed status. The
// iteration-failed event is suppressed for cancellation, where the session
// terminal event is the one that matters.
func (c *Controller) markFailed(a *Attempt, err error, emitEvent bool) {
	c.mu.Lock()
	a.Status = AttemptFailed
	a.Error = err.Error()
	a.FinishedAt = time.Now()
	c.mu.Unlock()

	logging.ForgeWarn("session %s: iteration %d failed: %v", c.cfg.SessionID, a.Index, err)
	if emitEvent {
		c.emit(EventIterationFailed, a.Index, err.Error(), nil)
	}
}

// fail ends the session before any iteration ran.
func (c *Controller) fail(err error) *Result {
	logging.ForgeError("session %s: fatal: %v", c.cfg.SessionID, err)
	c.mu.Lock()
	c.state = SessionFatal
	c.lastError = err.Error()
	c.finishedAt = time.Now()
	c.mu.Unlock()

	c.emit(EventSessionError, 0, err.Error(), nil)
	c.progress.Close()
	return c.snapshot()
}

// finalize builds the terminal Result, persists it, and emits the terminal
// event.
func (c *Controller) finalize() *Result {
	c.mu.Lock()
	if !c.state.Terminal() {
		c.state = SessionExhausted
	}
	c.finishedAt = time.Now()
	c.mu.Unlock()

	res := c.snapshot()
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SaveResult(res); err != nil {
			logging.ForgeWarn("session %s: failed to persist result: %v", c.cfg.SessionID, err)
		}
	}

	logging.Forge("session %s: finished %s best=%.1f@%d elapsed=%dms",
		c.cfg.SessionID, res.State, res.BestScore, res.BestIteration, res.Elapsed)

	c.emit(EventSessionComplete, 0, fmt.Sprintf("session %s", res.State), map[string]any{
		"state":          string(res.State),
		"converged":      res.Converged,
		"best_score":     res.BestScore,
		"best_iteration": res.BestIteration,
		"elapsed_ms":     res.Elapsed,
	})
	c.progress.Close()
	return res
}

// snapshot assembles a Result from current state. Safe to call while the
// loop is running; the server uses it for status reads. Attempts are
// copied under the lock so the caller never shares structs the loop is
// still mutating.
func (c *Controller) snapshot() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attempts := make([]*Attempt, len(c.attempts))
	for i, a := range c.attempts {
		cp := *a
		if a.CandidateDNA != nil {
			d := *a.CandidateDNA
			cp.CandidateDNA = &d
		}
		attempts[i] = &cp
	}

	finished := c.finishedAt
	elapsed := int64(0)
	if !c.startedAt.IsZero() {
		end := finished
		if end.IsZero() {
			end = time.Now()
		}
		elapsed = end.Sub(c.startedAt).Milliseconds()
	}

	return &Result{
		SessionID:     c.cfg.SessionID,
		Kind:          c.cfg.Kind,
		Target:        c.cfg.Target,
		Style:         c.cfg.Style,
		State:         c.state,
		Converged:     c.state == SessionConverged,
		BestScore:     c.bestScore,
		BestIteration: c.bestIteration,
		Reference:     c.reference,
		Attempts:      attempts,
		StartedAt:     c.startedAt,
		FinishedAt:    finished,
		Elapsed:       elapsed,
		Error:         c.lastError,
	}
}

// Snapshot returns the current view of the session for status queries.
func (c *Controller) Snapshot() *Result {
	return c.snapshot()
}

// transition moves the session to a non-terminal state and announces it.
func (c *Controller) transition(st SessionState) {
	c.setState(st)
	c.emit(EventStatusChanged, 0, string(st), map[string]any{"state": string(st)})
}

func (c *Controller) setState(st SessionState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *Controller) setAttemptStatus(a *Attempt, st AttemptStatus) {
	c.mu.Lock()
	a.Status = st
	c.mu.Unlock()
}

func (c *Controller) referenceDNA() dna.DNA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reference.DNA
}

func (c *Controller) referenceDescription() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reference.Description
}

func (c *Controller) currentFeedback() *Feedback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedback
}

// emit appends one event to the progress stream.
func (c *Controller) emit(t EventType, iteration int, message string, data any) {
	c.progress.Emit(Event{
		Type:      t,
		SessionID: c.cfg.SessionID,
		Iteration: iteration,
		Message:   message,
		Data:      data,
	})
}
