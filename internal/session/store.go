// Package session persists forge sessions on disk and maintains a small
// sqlite index over them for listing.
//
// Layout under the state directory:
//
//	sessions/<id>/reference.<ext>     reference image
//	sessions/<id>/iteration_<n>.<ext> candidate image for iteration n
//	sessions/<id>/iteration_<n>.json  evaluation document for iteration n
//	sessions/<id>/session.json        result snapshot, rewritten at terminal state
//
// Evaluation documents are amendable: a user rating is merged into the
// existing iteration_<n>.json without touching anything else in the
// directory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"styleforge/internal/forge"
	"styleforge/internal/logging"
)

// ErrNotFound is returned when a session or iteration artifact does not
// exist on disk.
var ErrNotFound = errors.New("session: not found")

// Store writes session artifacts under root/sessions and mirrors terminal
// results into the index when one is attached. It implements forge.Store.
type Store struct {
	root string
	idx  *Index
}

// NewStore creates the sessions directory under root. idx may be nil; then
// results are persisted to disk only.
func NewStore(root string, idx *Index) (*Store, error) {
	dir := filepath.Join(root, "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{root: root, idx: idx}, nil
}

// Index returns the attached index, or nil.
func (s *Store) Index() *Index {
	return s.idx
}

// Dir returns the directory holding one session's artifacts.
func (s *Store) Dir(sessionID string) string {
	return filepath.Join(s.root, "sessions", sessionID)
}

func (s *Store) ensureDir(sessionID string) (string, error) {
	dir := s.Dir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

// SaveReference writes the reference image and returns its path.
func (s *Store) SaveReference(sessionID string, data []byte, mime string) (string, error) {
	dir, err := s.ensureDir(sessionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "reference."+extForMIME(mime))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write reference: %w", err)
	}
	logging.SessionDebug("saved reference for %s (%d bytes)", sessionID, len(data))
	return path, nil
}

// SaveCandidate writes one iteration's candidate image and returns its path.
func (s *Store) SaveCandidate(sessionID string, iteration int, data []byte, mime string) (string, error) {
	dir, err := s.ensureDir(sessionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("iteration_%d.%s", iteration, extForMIME(mime)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write candidate: %w", err)
	}
	logging.SessionDebug("saved candidate %s/%d (%d bytes)", sessionID, iteration, len(data))
	return path, nil
}

// SaveEvaluation writes one iteration's evaluation document.
func (s *Store) SaveEvaluation(doc *forge.EvaluationDocument) error {
	dir, err := s.ensureDir(doc.SessionID)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, evalName(doc.Iteration)), doc)
}

// SaveResult writes the session.json snapshot and upserts the index row.
func (s *Store) SaveResult(res *forge.Result) error {
	dir, err := s.ensureDir(res.SessionID)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "session.json"), res); err != nil {
		return err
	}
	logging.Session("saved result for %s: state=%s best=%.1f", res.SessionID, res.State, res.BestScore)
	if s.idx != nil {
		if err := s.idx.Upsert(summaryOf(res)); err != nil {
			// The on-disk record is authoritative; a stale index row is
			// recoverable.
			logging.SessionError("index upsert for %s failed: %v", res.SessionID, err)
		}
	}
	return nil
}

// LoadResult reads a session's result snapshot.
func (s *Store) LoadResult(sessionID string) (*forge.Result, error) {
	var res forge.Result
	if err := readJSON(filepath.Join(s.Dir(sessionID), "session.json"), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LoadEvaluation reads one iteration's evaluation document.
func (s *Store) LoadEvaluation(sessionID string, iteration int) (*forge.EvaluationDocument, error) {
	var doc forge.EvaluationDocument
	if err := readJSON(filepath.Join(s.Dir(sessionID), evalName(iteration)), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CandidateImage returns the candidate bytes and MIME type for one
// iteration, located by its file extension.
func (s *Store) CandidateImage(sessionID string, iteration int) ([]byte, string, error) {
	dir := s.Dir(sessionID)
	for _, ext := range imageExts {
		path := filepath.Join(dir, fmt.Sprintf("iteration_%d.%s", iteration, ext))
		data, err := os.ReadFile(path)
		if err == nil {
			return data, mimeForExt(ext), nil
		}
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("read candidate: %w", err)
		}
	}
	return nil, "", ErrNotFound
}

// ReferenceImage returns the reference bytes and MIME type for a session.
func (s *Store) ReferenceImage(sessionID string) ([]byte, string, error) {
	dir := s.Dir(sessionID)
	for _, ext := range imageExts {
		path := filepath.Join(dir, "reference."+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, mimeForExt(ext), nil
		}
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("read reference: %w", err)
		}
	}
	return nil, "", ErrNotFound
}

// Rate merges a user rating into an iteration's evaluation document and
// returns the amended document. Rating must be 1-5.
func (s *Store) Rate(sessionID string, iteration, rating int, comment string) (*forge.EvaluationDocument, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be 1-5, got %d", rating)
	}
	doc, err := s.LoadEvaluation(sessionID, iteration)
	if err != nil {
		return nil, err
	}
	doc.UserRating = rating
	doc.UserComment = comment
	doc.RatedAt = time.Now()
	if err := writeJSON(filepath.Join(s.Dir(sessionID), evalName(iteration)), doc); err != nil {
		return nil, err
	}
	logging.Session("rated %s/%d: %d", sessionID, iteration, rating)
	return doc, nil
}

func evalName(iteration int) string {
	return fmt.Sprintf("iteration_%d.json", iteration)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

var imageExts = []string{"png", "jpg", "webp", "gif", "bin"}

func extForMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "bin"
}

func mimeForExt(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

func summaryOf(res *forge.Result) Summary {
	return Summary{
		ID:            res.SessionID,
		Kind:          string(res.Kind),
		Target:        res.Target,
		State:         string(res.State),
		Converged:     res.Converged,
		BestScore:     res.BestScore,
		BestIteration: res.BestIteration,
		Iterations:    len(res.Attempts),
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
}
