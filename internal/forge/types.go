// Package forge implements the iterative style-transfer control loop.
//
// A forge session takes a reference image and a target specification,
// extracts the reference's style DNA once, then repeatedly asks an external
// image model for a candidate, scores the candidate against the reference on
// three dimensions (visual similarity, text/subject accuracy, DNA
// comparison), and stops when the composite score clears the convergence
// threshold or the iteration budget runs out.
//
// The controller is used for:
//   - One-shot CLI sessions (cmd/forge run)
//   - HTTP-initiated sessions streamed over SSE (internal/server)
//   - Tests, with all three collaborators mocked
//
// Iterations are strictly sequential: each generation call is steered by the
// critique produced by the previous successful evaluation.
package forge

import (
	"context"
	"time"

	"styleforge/internal/dna"
)

// AttemptStatus tracks one iteration through its lifecycle.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptGenerating AttemptStatus = "generating"
	AttemptGenerated  AttemptStatus = "generated"
	AttemptEvaluating AttemptStatus = "evaluating"
	AttemptComplete   AttemptStatus = "complete"
	AttemptFailed     AttemptStatus = "failed"
)

// Terminal reports whether the status is final for an attempt.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptComplete || s == AttemptFailed
}

// SessionState tracks the whole session.
type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionExtracting SessionState = "extracting-reference"
	SessionIterating  SessionState = "iterating"
	SessionConverged  SessionState = "converged"
	SessionExhausted  SessionState = "exhausted"
	SessionCancelled  SessionState = "cancelled"
	SessionFatal      SessionState = "fatal-error"
)

// Terminal reports whether the state is final for a session.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionConverged, SessionExhausted, SessionCancelled, SessionFatal:
		return true
	}
	return false
}

// Variant defaults. Illustration sessions converge on looser scores in fewer
// attempts because subject accuracy dominates letterform fidelity there.
const (
	DefaultMaxIterations      = 5
	DefaultThreshold          = 90.0
	IllustrationMaxIterations = 3
	IllustrationThreshold     = 85.0
)

// Attempt is one pass through the generate-evaluate loop. The controller
// mutates it in place until the status is terminal, then never again; the
// full list is retained on the Result for best-iteration selection and
// replay.
type Attempt struct {
	Index  int           `json:"index"` // 1-based
	Status AttemptStatus `json:"status"`

	// Generation output
	ImagePath string `json:"image_path,omitempty"`
	ImageMIME string `json:"image_mime,omitempty"`

	// Extraction output
	CandidateDNA        *dna.DNA `json:"candidate_dna,omitempty"`
	CandidateDNADefault bool     `json:"candidate_dna_default,omitempty"`

	// Evaluation output
	Visual    float64  `json:"visual_score"`
	Accuracy  float64  `json:"accuracy_score"`
	DNAScore  float64  `json:"dna_score"`
	Composite float64  `json:"composite_score"`
	Fallback  bool     `json:"generic_fallback"`
	Preserved []string `json:"preserved,omitempty"`
	Lost      []string `json:"lost,omitempty"`
	Critique  string   `json:"critique,omitempty"`

	Error string `json:"error,omitempty"`

	// Timing
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	GenMillis  int64     `json:"generation_ms"`
	EvalMillis int64     `json:"evaluation_ms"`

	image []byte // candidate bytes, kept for evaluation and library callers
}

// Image returns the raw candidate bytes, or nil if generation never
// succeeded. The bytes are not part of the JSON form; persisted sessions
// reference them via ImagePath.
func (a *Attempt) Image() []byte {
	return a.image
}

// Feedback carries the critique of the most recent successful evaluation
// into the next generation call. Exactly one record exists per session at a
// time; failed iterations leave the previous record in place.
type Feedback struct {
	Iteration int      `json:"iteration"` // iteration whose evaluation produced this
	Score     float64  `json:"score"`
	Critique  string   `json:"critique"`
	Preserved []string `json:"preserved,omitempty"`
	Lost      []string `json:"lost,omitempty"`
}

// Reference is the immutable per-session view of the reference image after
// extraction: the image handle, its DNA, and a prose description of its
// style used verbatim in generation prompts.
type Reference struct {
	ImagePath   string  `json:"image_path,omitempty"`
	ImageMIME   string  `json:"image_mime,omitempty"`
	DNA         dna.DNA `json:"dna"`
	Description string  `json:"description,omitempty"`
}

// Result is the terminal artifact of a session.
type Result struct {
	SessionID string       `json:"session_id"`
	Kind      dna.Kind     `json:"kind"`
	Target    string       `json:"target"`
	Style     string       `json:"style,omitempty"`
	State     SessionState `json:"state"`
	Converged bool         `json:"converged"`

	BestScore     float64 `json:"best_score"`
	BestIteration int     `json:"best_iteration"` // 0 when nothing scored

	Reference Reference  `json:"reference"`
	Attempts  []*Attempt `json:"attempts"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Elapsed    int64     `json:"elapsed_ms"`

	Error string `json:"error,omitempty"` // set for fatal-error sessions
}

// Best returns the best-scoring attempt, or nil when no attempt completed.
func (r *Result) Best() *Attempt {
	if r.BestIteration == 0 {
		return nil
	}
	for _, a := range r.Attempts {
		if a.Index == r.BestIteration {
			return a
		}
	}
	return nil
}

// EvaluationDocument is the per-iteration artifact persisted alongside the
// candidate image. It can later be amended with a user rating without
// touching the rest of the session directory.
type EvaluationDocument struct {
	SessionID string   `json:"session_id"`
	Iteration int      `json:"iteration"`
	Kind      dna.Kind `json:"kind"`
	Target    string   `json:"target"`

	Visual    float64  `json:"visual_score"`
	Accuracy  float64  `json:"accuracy_score"`
	DNAScore  float64  `json:"dna_score"`
	Composite float64  `json:"composite_score"`
	Fallback  bool     `json:"generic_fallback"`
	Preserved []string `json:"preserved,omitempty"`
	Lost      []string `json:"lost,omitempty"`
	Critique  string   `json:"critique,omitempty"`

	ReferenceDNA dna.DNA  `json:"reference_dna"`
	CandidateDNA *dna.DNA `json:"candidate_dna,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// User amendment, absent until a rating is submitted.
	UserRating  int       `json:"user_rating,omitempty"` // 1-5
	UserComment string    `json:"user_comment,omitempty"`
	RatedAt     time.Time `json:"rated_at,omitempty"`
}

// ============================================================
// Collaborator boundaries
// ============================================================

// Candidate is one generated image.
type Candidate struct {
	Data []byte
	MIME string
}

// GenerateRequest carries everything the image model needs for one
// candidate. Feedback is nil on the first iteration.
type GenerateRequest struct {
	Kind           dna.Kind
	Target         string
	Style          string // strategy selector, passed through verbatim
	Category       dna.Category
	ReferenceImage []byte
	ReferenceMIME  string
	ReferenceDNA   dna.DNA
	Description    string
	Feedback       *Feedback
	Iteration      int
}

// EvaluateRequest asks for a reference/candidate comparison.
type EvaluateRequest struct {
	Kind           dna.Kind
	Target         string
	ReferenceImage []byte
	ReferenceMIME  string
	CandidateImage []byte
	CandidateMIME  string
}

// Evaluation is the evaluator's verdict on one candidate. Scores are 0-100.
type Evaluation struct {
	Visual    float64  `json:"visual_score"`
	Accuracy  float64  `json:"accuracy_score"`
	Preserved []string `json:"preserved,omitempty"`
	Lost      []string `json:"lost,omitempty"`
	Critique  string   `json:"critique"`
	Fallback  bool     `json:"generic_fallback"`
}

// FeatureExtractor turns an image into a DNA record and a prose style
// description. Implementations must return an error rather than a partial
// record; callers substitute dna.Default on failure.
type FeatureExtractor interface {
	ExtractDNA(ctx context.Context, image []byte, mime string, kind dna.Kind, cat dna.Category) (dna.DNA, error)
	DescribeStyle(ctx context.Context, image []byte, mime string) (string, error)
}

// CandidateGenerator produces one candidate image per call. A response with
// zero images is an error, not an empty Candidate.
type CandidateGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Candidate, error)
}

// SimilarityEvaluator scores a candidate against the reference.
type SimilarityEvaluator interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error)
}

// FeatureCache is a read-through cache in front of reference extraction,
// keyed by image identity. Implementations are safe for concurrent sessions.
type FeatureCache interface {
	Get(key string) (dna.DNA, string, bool)
	Put(key string, d dna.DNA, description string)
}

// Store persists session artifacts as they are produced. All methods are
// best-effort from the loop's point of view: persistence failures are logged
// and never fail an iteration.
type Store interface {
	SaveReference(sessionID string, data []byte, mime string) (string, error)
	SaveCandidate(sessionID string, iteration int, data []byte, mime string) (string, error)
	SaveEvaluation(doc *EvaluationDocument) error
	SaveResult(res *Result) error
}
