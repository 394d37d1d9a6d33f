package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// JSONFile is a persistent string-keyed map stored as a JSON object.
//
// Reads go through an in-memory copy that is dropped whenever the file's
// modification time differs from the one seen at the last load. Every mutation
// is written to disk before it returns.
type JSONFile struct {
	path string

	mu      sync.Mutex
	cache   map[string]json.RawMessage
	modTime time.Time
	loaded  bool
}

// NewJSONFile returns a handle for the file at path. Nothing is read until first use.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the file location.
func (f *JSONFile) Path() string {
	return f.path
}

// refresh reloads the cache when the file changed on disk. Caller holds mu.
func (f *JSONFile) refresh() error {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.cache = make(map[string]json.RawMessage)
			f.modTime = time.Time{}
			f.loaded = true
			return nil
		}
		return err
	}

	if f.loaded && info.ModTime().Equal(f.modTime) {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}

	m := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.path, err)
		}
	}

	f.cache = m
	f.modTime = info.ModTime()
	f.loaded = true
	return nil
}

// flush writes the cache to disk. Caller holds mu.
func (f *JSONFile) flush() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(f.cache, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return err
	}

	if info, err := os.Stat(f.path); err == nil {
		f.modTime = info.ModTime()
	}
	return nil
}

// Get decodes the value stored under key into out. It reports whether the key exists.
func (f *JSONFile) Get(key string, out any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return false, err
	}
	raw, ok := f.cache[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s[%s]: %w", f.path, key, err)
	}
	return true, nil
}

// GetString returns a string value, or "" when absent or not a string.
func (f *JSONFile) GetString(key string) string {
	var s string
	if ok, err := f.Get(key, &s); !ok || err != nil {
		return ""
	}
	return s
}

// Set stores value under key and writes the file.
func (f *JSONFile) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return err
	}
	f.cache[key] = raw
	return f.flush()
}

// Delete removes key and writes the file. Deleting a missing key is not an error.
func (f *JSONFile) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return err
	}
	if _, ok := f.cache[key]; !ok {
		return nil
	}
	delete(f.cache, key)
	return f.flush()
}

// Keys returns every key in sorted order.
func (f *JSONFile) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.cache))
	for k := range f.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Strings returns the file as a string map, skipping non-string values.
func (f *JSONFile) Strings() (map[string]string, error) {
	keys, err := f.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if s := f.GetString(k); s != "" {
			out[k] = s
		}
	}
	return out, nil
}

// Clear removes every key and writes an empty object.
func (f *JSONFile) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cache = make(map[string]json.RawMessage)
	f.loaded = true
	return f.flush()
}
