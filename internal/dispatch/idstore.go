package dispatch

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
)

// IDStore maps dispatch names to the IDs the server assigned to them.
//
// Every mutating call marks the store dirty. Only a successful Save clears the
// flag, so a failed Save can be retried without re-deriving IDs.
type IDStore struct {
	path   string
	ids    map[string]int64
	dirty  bool
	logger *slog.Logger
}

// LoadIDStore reads the store at path. A missing file yields an empty store
// that is written to path immediately.
func LoadIDStore(path string, logger *slog.Logger) (*IDStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &IDStore{path: path, ids: make(map[string]int64), logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read id store").
				WithContext("path", path).
				Build()
		}
		s.dirty = true
		if err := s.Save(); err != nil {
			return nil, err
		}
		logger.Debug("Created id store", logfields.Path(path))
		return s, nil
	}

	if err := json.Unmarshal(data, &s.ids); err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "id store is not a JSON object of integer ids").
			WithContext("path", path).
			Build()
	}
	if s.ids == nil {
		s.ids = make(map[string]int64)
	}
	logger.Debug("Loaded id store", logfields.Path(path), logfields.Count(len(s.ids)))
	return s, nil
}

// NewIDStore returns an empty, clean store backed by path without touching the file system.
func NewIDStore(path string, logger *slog.Logger) *IDStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &IDStore{path: path, ids: make(map[string]int64), logger: logger}
}

// Path returns the backing file path.
func (s *IDStore) Path() string { return s.path }

// Dirty reports whether the store has unsaved changes.
func (s *IDStore) Dirty() bool { return s.dirty }

// Len returns the number of stored IDs.
func (s *IDStore) Len() int { return len(s.ids) }

// SeedFromDefinitions copies explicit ids from defs into the store, overwriting
// existing entries. Definitions without an id are skipped. An id that is not an
// integer fails with CategoryValidation and leaves the store unchanged.
func (s *IDStore) SeedFromDefinitions(defs Definitions) error {
	seeded := make(map[string]int64)
	for name, def := range defs {
		raw, ok := def[FieldID]
		if !ok {
			continue
		}
		id, ok := asInt64(raw)
		if !ok {
			return errors.ValidationError("dispatch id must be an integer").
				WithContext("dispatch", name).
				WithContext("id", raw).
				Build()
		}
		seeded[name] = id
	}

	for name, id := range seeded {
		s.ids[name] = id
	}
	if len(seeded) > 0 {
		s.dirty = true
		s.logger.Debug("Seeded id store from definitions", logfields.Count(len(seeded)))
	}
	return nil
}

// Contains reports whether name has an ID.
func (s *IDStore) Contains(name string) bool {
	_, ok := s.ids[name]
	return ok
}

// Get returns the ID of name.
func (s *IDStore) Get(name string) (int64, error) {
	id, ok := s.ids[name]
	if !ok {
		return 0, errors.NotFound("dispatch id not found").
			WithContext("dispatch", name).
			Build()
	}
	return id, nil
}

// Set stores id for name, replacing any previous value.
func (s *IDStore) Set(name string, id int64) {
	s.ids[name] = id
	s.dirty = true
}

// RecordFromResponse extracts the dispatch ID from a server response body and stores it under name.
func (s *IDStore) RecordFromResponse(name string, body []byte) (int64, error) {
	id, err := ExtractID(body)
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryExtraction, "failed to record dispatch id").
			WithContext("dispatch", name).
			Build()
	}
	s.Set(name, id)
	s.logger.Debug("Recorded dispatch id", logfields.Dispatch(name), logfields.DispatchID(id))
	return id, nil
}

// Names returns the stored dispatch names, sorted.
func (s *IDStore) Names() []string {
	names := make([]string, 0, len(s.ids))
	for name := range s.ids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the stored IDs.
func (s *IDStore) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(s.ids))
	for k, v := range s.ids {
		out[k] = v
	}
	return out
}

// Save writes the store to its backing file when dirty. The file is replaced atomically.
func (s *IDStore) Save() error {
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.ids, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode id store").Build()
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to save id store").
			WithContext("path", s.path).
			Build()
	}

	s.dirty = false
	s.logger.Debug("Saved id store", logfields.Path(s.path), logfields.Count(len(s.ids)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// asInt64 converts the integer representations produced by TOML and JSON decoding.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
