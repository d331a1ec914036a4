// Package codec encodes snapshot manifests.
//
// A snapshot's manifest file name carries the name of the codec it was
// written with, so readers look the codec up through ByName and changing
// Default never breaks existing snapshots.
package codec

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ErrDuplicate is returned by Register when the name is already taken.
var ErrDuplicate = errors.New("codec: already registered")

var (
	mu       sync.RWMutex
	registry = map[string]Codec{
		JSON{}.Name():   JSON{},
		GoJSON{}.Name(): GoJSON{},
	}
)

// Register makes c available to ByName.
func Register(c Codec) error {
	if c == nil || c.Name() == "" {
		return errors.New("codec: nil codec or empty name")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[c.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, c.Name())
	}
	registry[c.Name()] = c
	return nil
}

// ByName returns a registered codec by its stable name.
func ByName(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Names returns the sorted names of all registered codecs.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Decode unmarshals data into a new T.
func Decode[T any](c Codec, data []byte) (*T, error) {
	v := new(T)
	if err := c.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	return v, nil
}
