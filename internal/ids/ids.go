// Package ids issues record identifiers.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// Provider issues unique identifiers for stored records.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// SequenceProvider issues predictable, lexically ordered identifiers for tests and fixtures.
type SequenceProvider struct {
	Prefix string
	next   int
}

// NewID returns Prefix followed by a zero-padded increasing counter.
func (p *SequenceProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s%06d", p.Prefix, p.next), nil
}
