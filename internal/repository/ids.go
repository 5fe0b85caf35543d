package repository

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces habit ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-ordered UUIDv7 ids. Two habits created in the
// same millisecond still get distinct ids.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SequenceGenerator issues prefix-1, prefix-2, ... and is meant for tests.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
