package executor

import (
	"strings"

	"github.com/egoavara/modmgr/internal/store"
)

// Storage is a plugin's view of the shared storage file. Every key is stored
// as "{pluginId}_{key}".
type Storage struct {
	file   *store.JSONFile
	prefix string
}

// NewStorage scopes file to pluginID.
func NewStorage(file *store.JSONFile, pluginID string) *Storage {
	return &Storage{file: file, prefix: pluginID + "_"}
}

// Key returns the stored form of key.
func (s *Storage) Key(key string) string {
	return s.prefix + key
}

// Get decodes the value of key into out and reports whether it was present.
func (s *Storage) Get(key string, out any) (bool, error) {
	return s.file.Get(s.Key(key), out)
}

// Set stores value under key.
func (s *Storage) Set(key string, value any) error {
	return s.file.Set(s.Key(key), value)
}

// Remove deletes key.
func (s *Storage) Remove(key string) error {
	return s.file.Delete(s.Key(key))
}

// Keys returns this plugin's keys without the prefix, sorted.
func (s *Storage) Keys() ([]string, error) {
	all, err := s.file.Keys()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, s.prefix); ok {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}
