package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/pulse/internal/types"
)

// ErrValidation is returned (wrapped in *ParseValidationError) when a
// serialized candidate document fails to parse. The published document is
// left untouched.
var ErrValidation = errors.New("document validation failed")

// ErrCorruptDocument is returned by Load when the persisted file exists but
// cannot be decoded.
var ErrCorruptDocument = errors.New("persisted document is corrupt")

// ParseValidationError describes why a candidate document was rejected.
type ParseValidationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document validation failed for %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("document validation failed for %s: %s", e.Path, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ParseValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// Config holds document store configuration
type Config struct {
	// Path is the canonical location of the persisted document
	// Default: "dashboard/metrics.json"
	Path string

	// Marshal serializes a document. Defaults to types.EncodeDocument.
	Marshal func(*types.Document) ([]byte, error)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path:    "dashboard/metrics.json",
		Marshal: types.EncodeDocument,
	}
}

// Store reads and atomically writes the persisted document.
type Store struct {
	path    string
	marshal func(*types.Document) ([]byte, error)
}

// NewStore creates a document store.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Store{path: cfg.Path, marshal: cfg.Marshal}
	if s.path == "" {
		s.path = DefaultConfig().Path
	}
	if s.marshal == nil {
		s.marshal = types.EncodeDocument
	}
	return s
}

// Path returns the canonical document path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted document. It returns nil, nil when no document
// has been published yet.
func (s *Store) Load() (*types.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read document %s: %w", s.path, err)
	}
	doc, err := types.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, err)
	}
	return doc, nil
}

// Write publishes doc at the canonical path.
//
// The document is serialized to a temporary file next to the target, read
// back and validated, and only then renamed over the canonical path. Readers
// therefore see either the old document or the complete new one. When
// validation fails the temporary file is removed and the old document is
// left as it was.
func (s *Store) Write(doc *types.Document) error {
	data, err := s.marshal(doc)
	if err != nil {
		return &ParseValidationError{Path: s.path, Reason: "serialization failed", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating document directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting document permissions: %w", err)
	}

	written, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("reading back temp file: %w", err)
	}
	if err := validate(s.path, written); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	committed = true
	return nil
}

// validate checks that data is a well-formed document: a JSON object that
// decodes as a Document and carries no bookkeeping keys.
func validate(path string, data []byte) error {
	if !json.Valid(data) {
		return &ParseValidationError{Path: path, Reason: "not well-formed JSON"}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &ParseValidationError{Path: path, Reason: "top-level value is not an object"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return &ParseValidationError{Path: path, Reason: "not a JSON object", Err: err}
	}
	for key := range top {
		if types.IsBookkeepingKey(key) {
			return &ParseValidationError{Path: path, Reason: fmt.Sprintf("contains bookkeeping key %q", key)}
		}
	}
	if _, err := types.DecodeDocument(trimmed); err != nil {
		return &ParseValidationError{Path: path, Reason: "does not decode as a document", Err: err}
	}
	return nil
}
