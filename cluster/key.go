package cluster

import (
	"strings"

	"github.com/google/uuid"
)

// Key identifies a value held in a Store.
type Key string

// MakeKey returns the key for a named value, e.g. a frame named after its
// source file or a model named after its hyperparameters.
func MakeKey(name string) Key {
	return Key(name)
}

// RandomKey returns a fresh anonymous key of the form "<prefix>_<uuid>".
func RandomKey(prefix string) Key {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return Key(id)
	}
	return Key(prefix + "_" + id)
}

func (k Key) String() string {
	return string(k)
}
