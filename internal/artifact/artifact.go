// Package artifact is the ArtifactStore: content-addressed file payloads
// with sidecar JSON metadata. File payloads are copied into the store via
// atomic rename; URL and other by-reference sources never touch the
// payload directory.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/store"
)

// ErrPayloadTooLarge is returned by Put when a file payload exceeds the
// configured size cap.
var ErrPayloadTooLarge = errors.New("artifact: payload exceeds size cap")

// ErrPathNotFound is returned by Put when a file source path does not
// exist.
var ErrPathNotFound = errors.New("artifact: source path not found")

// DefaultMaxPayloadBytes is the default per-artifact size cap (8 MiB).
const DefaultMaxPayloadBytes = 8 << 20

// Store operates the artifact payload + metadata subtree.
type Store struct {
	st            *store.Store
	ids           *idgen.Generator
	clock         clock.Clock
	maxBytes      int64
}

// New creates a Store with the given size cap. A maxBytes of 0 uses
// DefaultMaxPayloadBytes.
func New(st *store.Store, ids *idgen.Generator, clk clock.Clock, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	return &Store{st: st, ids: ids, clock: clk, maxBytes: maxBytes}
}

// PutRequest describes a new artifact to create.
type PutRequest struct {
	TaskID     string
	Source     model.ArtifactSource
	SourcePath string // required when Source == file
	URL        string // required when Source == url; also used for conversation/prompt/log/reference
	Title      string
	Summary    string
	Sensitive  bool
	Role       string
	Actor      string
}

// Put creates a new artifact record. For file sources, the payload is
// copied into artifacts/payload/<id>.<ext> via atomic rename from a temp
// copy; for all other sources, PayloadRef is the caller-supplied
// reference string (URL, conversation ID, etc.) stored by reference.
func (s *Store) Put(req PutRequest) (*model.Artifact, error) {
	id := s.ids.Next(idgen.KindArtifact, nowFor(s.clock))
	art := &model.Artifact{
		ID:        id,
		TaskID:    req.TaskID,
		Source:    req.Source,
		Title:     req.Title,
		Summary:   req.Summary,
		Sensitive: req.Sensitive,
		Role:      req.Role,
		CreatedAt: s.clock.Now(),
		Actor:     req.Actor,
	}

	if req.Source == model.ArtifactFile {
		ref, err := s.copyPayload(id, req.SourcePath)
		if err != nil {
			return nil, err
		}
		art.PayloadRef = ref
	} else {
		art.PayloadRef = req.URL
	}

	if err := store.WriteJSONAtomic(s.st.ArtifactMetaPath(id), art); err != nil {
		return nil, fmt.Errorf("artifact: writing meta: %w", err)
	}
	return art, nil
}

func (s *Store) copyPayload(id, sourcePath string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrPathNotFound
		}
		return "", fmt.Errorf("artifact: stat source: %w", err)
	}
	if info.Size() > s.maxBytes {
		return "", ErrPayloadTooLarge
	}

	ext := filepath.Ext(sourcePath)
	dstPath := s.st.ArtifactPayloadPath(id, ext)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("artifact: mkdir payload dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), "payload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("artifact: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := os.Open(sourcePath)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("artifact: open source: %w", err)
	}
	written, err := io.CopyN(tmp, src, s.maxBytes+1)
	src.Close()
	if err != nil && err != io.EOF {
		tmp.Close()
		return "", fmt.Errorf("artifact: copy: %w", err)
	}
	if written > s.maxBytes {
		tmp.Close()
		return "", ErrPayloadTooLarge
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("artifact: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("artifact: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return "", fmt.Errorf("artifact: rename into place: %w", err)
	}
	rel, err := filepath.Rel(s.st.ArtifactPayloadDir(), dstPath)
	if err != nil {
		rel = filepath.Base(dstPath)
	}
	return filepath.Join("artifacts", "payload", rel), nil
}

// Get loads an artifact's metadata by ID.
func (s *Store) Get(id string) (*model.Artifact, error) {
	var art model.Artifact
	if err := store.ReadJSON(s.st.ArtifactMetaPath(id), &art); err != nil {
		return nil, err
	}
	return &art, nil
}

// MissingPayload reports whether a file-sourced artifact's referenced
// payload no longer exists on disk, for doctor's dangling-reference scan.
func (s *Store) MissingPayload(art *model.Artifact) bool {
	if art.Source != model.ArtifactFile {
		return false
	}
	return !store.Exists(filepath.Join(s.st.Root, art.PayloadRef))
}

func nowFor(c clock.Clock) time.Time {
	ts, err := clock.Parse(c.Now())
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}
