// Package uuid generates bookmark IDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings from a configurable source.
type Generator struct {
	version int
	source  func() (uuid.UUID, error)
}

// New returns a Generator producing random (version 4) UUIDs.
func New() *Generator {
	return &Generator{version: 4, source: uuid.NewRandom}
}

// NewTimeOrdered returns a Generator producing version 7 UUIDs, which sort
// by creation time.
func NewTimeOrdered() *Generator {
	return &Generator{version: 7, source: uuid.NewV7}
}

// NewID returns a new UUID string.
func (g *Generator) NewID() (string, error) {
	id, err := g.source()
	if err != nil {
		return "", fmt.Errorf("generate uuid%d: %w", g.version, err)
	}
	return id.String(), nil
}
