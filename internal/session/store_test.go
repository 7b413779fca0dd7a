package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"styleforge/internal/dna"
	"styleforge/internal/forge"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func sampleDNA() dna.DNA {
	return dna.DNA{
		Summary:      "high-contrast didone with ball terminals",
		StrokeWeight: 0.6,
		Contrast:     0.9,
		Curvature:    0.5,
		CornerRadius: 0.1,
		Spacing:      0.4,
		Proportion:   0.8,
		Terminal:     dna.TerminalBall,
		Serif:        true,
	}
}

func sampleDoc(sessionID string, iteration int) *forge.EvaluationDocument {
	return &forge.EvaluationDocument{
		SessionID:    sessionID,
		Iteration:    iteration,
		Kind:         dna.KindTypeface,
		Target:       "FORGE",
		Visual:       82,
		Accuracy:     91,
		DNAScore:     77,
		Composite:    83.6,
		Preserved:    []string{"contrast"},
		Lost:         []string{"ink traps"},
		Critique:     "terminals drifted rounder",
		ReferenceDNA: sampleDNA(),
		CreatedAt:    time.Now(),
	}
}

func TestSaveReferenceLayout(t *testing.T) {
	s := testStore(t)

	path, err := s.SaveReference("abc", []byte("imgdata"), "image/png")
	if err != nil {
		t.Fatalf("SaveReference failed: %v", err)
	}
	want := filepath.Join(s.Dir("abc"), "reference.png")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, mime, err := s.ReferenceImage("abc")
	if err != nil {
		t.Fatalf("ReferenceImage failed: %v", err)
	}
	if string(data) != "imgdata" || mime != "image/png" {
		t.Errorf("got (%q, %q)", data, mime)
	}
}

func TestSaveCandidateLayout(t *testing.T) {
	s := testStore(t)

	path, err := s.SaveCandidate("abc", 3, []byte("cand"), "image/jpeg")
	if err != nil {
		t.Fatalf("SaveCandidate failed: %v", err)
	}
	if filepath.Base(path) != "iteration_3.jpg" {
		t.Errorf("file name = %q, want iteration_3.jpg", filepath.Base(path))
	}
	data, mime, err := s.CandidateImage("abc", 3)
	if err != nil {
		t.Fatalf("CandidateImage failed: %v", err)
	}
	if string(data) != "cand" || mime != "image/jpeg" {
		t.Errorf("got (%q, %q)", data, mime)
	}
}

func TestCandidateImageMissing(t *testing.T) {
	s := testStore(t)
	if _, _, err := s.CandidateImage("nope", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEvaluationRoundTrip(t *testing.T) {
	s := testStore(t)
	doc := sampleDoc("abc", 2)
	if err := s.SaveEvaluation(doc); err != nil {
		t.Fatalf("SaveEvaluation failed: %v", err)
	}

	got, err := s.LoadEvaluation("abc", 2)
	if err != nil {
		t.Fatalf("LoadEvaluation failed: %v", err)
	}
	if got.Composite != doc.Composite || got.Critique != doc.Critique {
		t.Errorf("loaded doc differs: %+v", got)
	}
	if got.ReferenceDNA.Summary != doc.ReferenceDNA.Summary {
		t.Errorf("reference DNA summary = %q", got.ReferenceDNA.Summary)
	}
	if got.UserRating != 0 {
		t.Errorf("fresh doc has rating %d", got.UserRating)
	}
}

func TestResultRoundTrip(t *testing.T) {
	s := testStore(t)
	res := &forge.Result{
		SessionID:     "abc",
		Kind:          dna.KindTypeface,
		Target:        "FORGE",
		State:         forge.SessionConverged,
		Converged:     true,
		BestScore:     91.5,
		BestIteration: 2,
		Attempts: []*forge.Attempt{
			{Index: 1, Status: forge.AttemptComplete, Composite: 80},
			{Index: 2, Status: forge.AttemptComplete, Composite: 91.5},
		},
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	if err := s.SaveResult(res); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir("abc"), "session.json")); err != nil {
		t.Fatalf("session.json missing: %v", err)
	}

	got, err := s.LoadResult("abc")
	if err != nil {
		t.Fatalf("LoadResult failed: %v", err)
	}
	if got.BestScore != 91.5 || got.BestIteration != 2 || !got.Converged {
		t.Errorf("loaded result differs: %+v", got)
	}
	if len(got.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(got.Attempts))
	}
	if best := got.Best(); best == nil || best.Index != 2 {
		t.Errorf("Best() = %+v", best)
	}
}

func TestLoadResultMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.LoadResult("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRateAmendsDocumentOnly(t *testing.T) {
	s := testStore(t)
	if err := s.SaveEvaluation(sampleDoc("abc", 1)); err != nil {
		t.Fatal(err)
	}

	amended, err := s.Rate("abc", 1, 4, "close but the terminals are off")
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if amended.UserRating != 4 || amended.UserComment == "" {
		t.Errorf("amended = %+v", amended)
	}
	if amended.RatedAt.IsZero() {
		t.Error("RatedAt not set")
	}

	// Original evaluation content survives the merge.
	got, err := s.LoadEvaluation("abc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Critique != "terminals drifted rounder" || got.Composite != 83.6 {
		t.Errorf("merge clobbered evaluation fields: %+v", got)
	}
	if got.UserRating != 4 {
		t.Errorf("rating not persisted: %d", got.UserRating)
	}
}

func TestRateRejectsOutOfRange(t *testing.T) {
	s := testStore(t)
	if err := s.SaveEvaluation(sampleDoc("abc", 1)); err != nil {
		t.Fatal(err)
	}
	for _, r := range []int{0, 6, -1} {
		if _, err := s.Rate("abc", 1, r, ""); err == nil {
			t.Errorf("rating %d accepted", r)
		}
	}
}

func TestRateMissingIteration(t *testing.T) {
	s := testStore(t)
	if _, err := s.Rate("abc", 9, 3, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExtForMIME(t *testing.T) {
	cases := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpg",
		"image/webp": "webp",
		"image/gif":  "gif",
		"who/knows":  "bin",
	}
	for mime, want := range cases {
		if got := extForMIME(mime); got != want {
			t.Errorf("extForMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
