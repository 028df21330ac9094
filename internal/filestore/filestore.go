// Package filestore reads per-user JSON documents saved under a sessions directory.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"campus/api/internal/util"
)

const documentName = "database.json"

var (
	ErrInvalidUserID = errors.New("filestore: invalid user id")
	ErrNotFound      = errors.New("filestore: document not found")
	ErrMalformed     = errors.New("filestore: malformed document")
)

type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Path returns <root>/<userID>/database.json, rejecting ids that are not a single safe segment.
func (s *Store) Path(userID string) (string, error) {
	if !util.SafeSegment(userID) {
		return "", ErrInvalidUserID
	}
	return filepath.Join(s.root, userID, documentName), nil
}

// Load returns the user's document as raw JSON after checking that it parses.
func (s *Store) Load(userID string) (json.RawMessage, error) {
	path, err := s.Path(userID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", documentName, err)
	}
	if !json.Valid(raw) {
		return nil, ErrMalformed
	}
	return json.RawMessage(raw), nil
}
