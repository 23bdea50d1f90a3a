package domain

import (
	"fmt"
	"strings"
)

type EntityType string

const (
	EntityCard   EntityType = "card"
	EntityColumn EntityType = "column"
	EntityBoard  EntityType = "board"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCard, EntityColumn, EntityBoard:
		return true
	default:
		return false
	}
}

// EntityKey identifies one versioned entity.
type EntityKey struct {
	Type EntityType
	ID   string
}

func NewEntityKey(t EntityType, id string) EntityKey {
	return EntityKey{Type: t, ID: id}
}

// String returns the composite "type:id" form used to index editors.
func (k EntityKey) String() string {
	return string(k.Type) + ":" + k.ID
}

// ParseEntityKey parses the composite "type:id" form.
func ParseEntityKey(s string) (EntityKey, error) {
	t, id, ok := strings.Cut(s, ":")
	if !ok || id == "" || !EntityType(t).Valid() {
		return EntityKey{}, fmt.Errorf("domain.ParseEntityKey: %q: %w", s, ErrMalformedEvent)
	}
	return EntityKey{Type: EntityType(t), ID: id}, nil
}
