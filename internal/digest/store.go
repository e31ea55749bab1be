package digest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/datastory/internal/utils"
)

// ErrNotFound is returned when no digest exists for a session.
var ErrNotFound = errors.New("digest not found")

// FileName is the digest document name inside a session directory.
const FileName = "stat.json"

// Store persists whole digests keyed by session id. Writes replace the
// previous document atomically.
type Store interface {
	Save(ctx context.Context, sessionID string, d *Digest) error
	Load(ctx context.Context, sessionID string) (*Digest, error)
	Delete(ctx context.Context, sessionID string) error
}

// FileStore keeps one JSON document per session under Root.
type FileStore struct {
	Root string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Root: dir}
}

// Path returns the document path for a session.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.Root, sessionID, FileName)
}

func (s *FileStore) Save(ctx context.Context, sessionID string, d *Digest) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := d.Encode()
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(s.Path(sessionID), b)
}

func (s *FileStore) Load(ctx context.Context, sessionID string) (*Digest, error) {
	if err := checkID(sessionID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("read digest: %w", err)
	}
	return Decode(b)
}

func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	err := os.Remove(s.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return err
}

// checkID rejects ids that would escape the store root.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
