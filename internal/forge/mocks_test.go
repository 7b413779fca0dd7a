package forge

import (
	"context"
	"errors"
	"sync"

	"styleforge/internal/dna"
)

var errSaveFailed = errors.New("save failed")

// --- MockExtractor ---

type MockExtractor struct {
	mu            sync.Mutex
	ExtractFunc   func(ctx context.Context, image []byte, mime string, kind dna.Kind, cat dna.Category) (dna.DNA, error)
	DescribeFunc  func(ctx context.Context, image []byte, mime string) (string, error)
	ExtractCalls  int
	DescribeCalls int
}

func (m *MockExtractor) ExtractDNA(ctx context.Context, image []byte, mime string, kind dna.Kind, cat dna.Category) (dna.DNA, error) {
	m.mu.Lock()
	m.ExtractCalls++
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, image, mime, kind, cat)
	}
	return testDNA("mock extraction"), nil
}

func (m *MockExtractor) DescribeStyle(ctx context.Context, image []byte, mime string) (string, error) {
	m.mu.Lock()
	m.DescribeCalls++
	m.mu.Unlock()
	if m.DescribeFunc != nil {
		return m.DescribeFunc(ctx, image, mime)
	}
	return "a mock style", nil
}

// --- MockGenerator ---

type MockGenerator struct {
	mu           sync.Mutex
	GenerateFunc func(ctx context.Context, req GenerateRequest) (*Candidate, error)
	Requests     []GenerateRequest
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (*Candidate, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &Candidate{Data: []byte("png-bytes"), MIME: "image/png"}, nil
}

func (m *MockGenerator) RequestAt(i int) GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests[i]
}

// --- MockEvaluator ---

type MockEvaluator struct {
	mu           sync.Mutex
	EvaluateFunc func(ctx context.Context, req EvaluateRequest) (*Evaluation, error)
	Calls        int
}

func (m *MockEvaluator) Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, req)
	}
	return &Evaluation{Visual: 80, Accuracy: 80, Critique: "mock critique"}, nil
}

// --- MockStore ---

type MockStore struct {
	mu          sync.Mutex
	References  map[string][]byte
	Candidates  map[string]map[int][]byte
	Evaluations []*EvaluationDocument
	Results     []*Result
	FailSaves   bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		References: make(map[string][]byte),
		Candidates: make(map[string]map[int][]byte),
	}
}

func (m *MockStore) SaveReference(sessionID string, data []byte, mime string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return "", errSaveFailed
	}
	m.References[sessionID] = data
	return "sessions/" + sessionID + "/reference.png", nil
}

func (m *MockStore) SaveCandidate(sessionID string, iteration int, data []byte, mime string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return "", errSaveFailed
	}
	if m.Candidates[sessionID] == nil {
		m.Candidates[sessionID] = make(map[int][]byte)
	}
	m.Candidates[sessionID][iteration] = data
	return "sessions/" + sessionID + "/candidate.png", nil
}

func (m *MockStore) SaveEvaluation(doc *EvaluationDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return errSaveFailed
	}
	m.Evaluations = append(m.Evaluations, doc)
	return nil
}

func (m *MockStore) SaveResult(res *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return errSaveFailed
	}
	m.Results = append(m.Results, res)
	return nil
}

// --- MockCache ---

type MockCache struct {
	mu      sync.Mutex
	entries map[string]cachedRef
	Hits    int
	Misses  int
	Puts    int
}

type cachedRef struct {
	d    dna.DNA
	desc string
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string]cachedRef)}
}

func (m *MockCache) Get(key string) (dna.DNA, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if ok {
		m.Hits++
	} else {
		m.Misses++
	}
	return e.d, e.desc, ok
}

func (m *MockCache) Put(key string, d dna.DNA, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	m.entries[key] = cachedRef{d: d, desc: description}
}

// --- helpers ---

// testDNA builds a valid non-default record for tests.
func testDNA(summary string) dna.DNA {
	return dna.DNA{
		Summary:      summary,
		StrokeWeight: 0.6,
		Contrast:     0.3,
		Curvature:    0.7,
		CornerRadius: 0.2,
		InkTrapDepth: 0.1,
		Spacing:      0.5,
		Proportion:   0.55,
		Terminal:     dna.TerminalRounded,
		Serif:        false,
	}
}
