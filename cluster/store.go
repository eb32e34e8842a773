package cluster

import (
	"sort"
	"sync"

	"github.com/mannetroll/analysis/pkg/errors"
)

// Description is how a stored value presents itself on the REST status API.
type Description struct {
	Key     Key                    `json:"key"`
	Kind    string                 `json:"kind"`
	Summary map[string]interface{} `json:"summary,omitempty"`
}

// Describer is implemented by stored values that can be listed over REST.
// Kind is one of "frame", "model" or "job".
type Describer interface {
	Describe() Description
}

// Store is the cloud's key/value store. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[Key]interface{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[Key]interface{})}
}

// Put stores v under k, replacing any previous value.
func (s *Store) Put(k Key, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[k] = v
}

// Lookup returns the value stored under k.
func (s *Store) Lookup(k Key) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	return v, ok
}

// Remove deletes k and reports whether it was present.
func (s *Store) Remove(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[k]
	delete(s.values, k)
	return ok
}

// Size returns the number of stored keys.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns every key in sorted order.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clear removes every key.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[Key]interface{})
}

// Describe lists the values of the given kind that implement Describer.
// An empty kind lists all of them.
func (s *Store) Describe(kind string) []Description {
	out := []Description{}
	for _, k := range s.Keys() {
		v, ok := s.Lookup(k)
		if !ok {
			continue
		}
		d, ok := v.(Describer)
		if !ok {
			continue
		}
		desc := d.Describe()
		if kind == "" || desc.Kind == kind {
			out = append(out, desc)
		}
	}
	return out
}

// Get returns the value stored under k as a T.
func Get[T any](s *Store, k Key) (T, error) {
	var zero T
	v, ok := s.Lookup(k)
	if !ok {
		return zero, errors.Wrapf(errors.ErrKeyNotFound, "key %q", k)
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.NewValueError("cluster.Get", "value under key "+string(k)+" has an unexpected type")
	}
	return t, nil
}
