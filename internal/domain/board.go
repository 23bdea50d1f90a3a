package domain

import (
	"context"
	"time"
)

type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Background  string    `json:"background,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position"`
	Cards    []Card `json:"cards"`
}

type Card struct {
	ID          string     `json:"id"`
	ColumnID    string     `json:"columnId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	Position    int        `json:"position"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Snapshot is the full board tree a client renders. Values are treated as
// immutable once published; folding an event produces a new Snapshot.
type Snapshot struct {
	Board   Board    `json:"board"`
	Columns []Column `json:"columns"`
}

// ColumnIndex returns the index of the column with the given id, or -1.
func (s *Snapshot) ColumnIndex(columnID string) int {
	for i := range s.Columns {
		if s.Columns[i].ID == columnID {
			return i
		}
	}
	return -1
}

// FindCard returns the column and card indexes holding cardID.
func (s *Snapshot) FindCard(cardID string) (col, card int, ok bool) {
	for i := range s.Columns {
		for j := range s.Columns[i].Cards {
			if s.Columns[i].Cards[j].ID == cardID {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

// Card returns a copy of the card with the given id.
func (s *Snapshot) Card(cardID string) (Card, bool) {
	i, j, ok := s.FindCard(cardID)
	if !ok {
		return Card{}, false
	}
	return s.Columns[i].Cards[j], true
}

// CardPatch is a shallow field-level update. Nil fields are left unchanged.
type CardPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Labels == nil && p.AssigneeID == nil && p.DueAt == nil
}

// Apply returns c with the non-nil patch fields written over it.
func (p CardPatch) Apply(c Card) Card {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Labels != nil {
		c.Labels = append([]string(nil), (*p.Labels)...)
	}
	if p.AssigneeID != nil {
		id := *p.AssigneeID
		c.AssigneeID = &id
	}
	if p.DueAt != nil {
		due := *p.DueAt
		c.DueAt = &due
	}
	return c
}

type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (p ColumnPatch) Empty() bool {
	return p.Title == nil && p.Color == nil
}

// Apply returns c with the non-nil patch fields written over it. Cards are
// shared with the input.
func (p ColumnPatch) Apply(c Column) Column {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	return c
}

type BoardPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Background  *string `json:"background,omitempty"`
}

func (p BoardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Background == nil
}

func (p BoardPatch) Apply(b Board) Board {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Background != nil {
		b.Background = *p.Background
	}
	return b
}

// BoardRepository reads the authoritative board tree from durable storage.
type BoardRepository interface {
	GetSnapshot(ctx context.Context, boardID string) (*Snapshot, error)
}
