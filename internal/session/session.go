// Package session persists per-upload metadata: processing status, the
// user's description and what the narrative steps extracted from it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/datastory/internal/utils"
)

const fileName = "session.json"

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned for a session whose TTL has passed.
	ErrExpired = errors.New("session expired")
)

// Status of the upload pipeline for a session.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Emotion is a recommended emotion and the reason given for it.
type Emotion struct {
	Emotion string `json:"emotion"`
	Reason  string `json:"reason"`
}

// Caution flags emotions that would be inappropriate for sensitive data.
type Caution struct {
	Present bool   `json:"is_there_inappropriate_emotion"`
	Emotion string `json:"inappropriate_emotion"`
	Reason  string `json:"reason"`
}

// Emotions groups the results of an emotion recommendation.
type Emotions struct {
	Recommended   Emotion `json:"recommended"`
	Inappropriate Caution `json:"inappropriate"`
}

// Session is the metadata stored alongside a session's files.
type Session struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	CoreConcept string    `json:"core_concept,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	Emotions    *Emotions `json:"emotions,omitempty"`
	// Error holds the last pipeline failure. The digest, if any, stays valid.
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Topic returns the core concept, falling back to the raw description.
func (s *Session) Topic() string {
	if s.CoreConcept != "" {
		return s.CoreConcept
	}
	return s.Description
}

// Expired reports whether the session has outlived its TTL at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store keeps sessions as <root>/<id>/session.json. Every write refreshes
// the expiry. Read-modify-write cycles are serialized by the store.
type Store struct {
	root string
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewStore returns a store under root. A ttl of zero disables expiry.
func NewStore(root string, ttl time.Duration) *Store {
	return &Store{root: root, ttl: ttl, now: time.Now}
}

// Root returns the directory holding all sessions.
func (s *Store) Root() string { return s.root }

// Dir returns the directory of a session's files.
func (s *Store) Dir(id string) string { return filepath.Join(s.root, id) }

// Create starts a session in the processing state. An empty id gets a
// fresh uuid. Re-creating an existing id resets it.
func (s *Store) Create(id, description string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	sess := &Session{
		ID:          id,
		Status:      StatusProcessing,
		Description: description,
		CreatedAt:   now,
	}
	if err := s.write(sess, now); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a live session.
func (s *Store) Get(id string) (*Session, error) {
	sess, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return sess, fmt.Errorf("session %s: %w", id, ErrExpired)
	}
	return sess, nil
}

// Update applies fn to a live session and saves the result.
func (s *Store) Update(id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.write(sess, s.now().UTC()); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns every stored session, expired or not, newest first.
func (s *Store) List() ([]*Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := s.read(e.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Purge removes the directories of expired sessions and returns how many
// were removed.
func (s *Store) Purge() (int, error) {
	all, err := s.List()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, sess := range all {
		if !sess.Expired(now) {
			continue
		}
		if err := os.RemoveAll(s.Dir(sess.ID)); err != nil {
			return n, fmt.Errorf("remove session %s: %w", sess.ID, err)
		}
		n++
	}
	return n, nil
}

// WriteFile stores an artifact such as the uploaded table or a generated
// story next to the session metadata.
func (s *Store) WriteFile(id, name string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := checkID(name); err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.Dir(id), name), data)
}

// ReadFile reads an artifact written by WriteFile.
func (s *Store) ReadFile(id, name string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := checkID(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir(id), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", id, name, ErrNotFound)
	}
	return b, err
}

// RemoveFile deletes an artifact. A missing file is not an error.
func (s *Store) RemoveFile(id, name string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := checkID(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.Dir(id), name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s/%s: %w", id, name, err)
	}
	return nil
}

func (s *Store) read(id string) (*Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir(id), fileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *Store) write(sess *Session, now time.Time) error {
	sess.UpdatedAt = now
	if s.ttl > 0 {
		sess.ExpiresAt = now.Add(s.ttl)
	}
	data, err := utils.PrettyJSON(sess)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.Dir(sess.ID), fileName), data)
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
