package syncclient

import "github.com/gosuda/boardsync/internal/domain"

// The fold functions never modify their input snapshot. Slices on the path
// to a change are copied; untouched columns and cards are shared.

func cloneColumns(cols []domain.Column) []domain.Column {
	return append([]domain.Column(nil), cols...)
}

func renumber(cards []domain.Card) {
	for i := range cards {
		cards[i].Position = i
	}
}

// addCard appends the card to the end of its column. A card id already
// present anywhere in the snapshot is left alone.
func addCard(s *domain.Snapshot, columnID string, card domain.Card) (*domain.Snapshot, bool) {
	if _, _, exists := s.FindCard(card.ID); exists {
		return s, false
	}
	ci := s.ColumnIndex(columnID)
	if ci < 0 {
		return s, false
	}

	next := *s
	next.Columns = cloneColumns(s.Columns)
	col := next.Columns[ci]
	card.ColumnID = columnID
	cards := make([]domain.Card, 0, len(col.Cards)+1)
	cards = append(cards, col.Cards...)
	cards = append(cards, card)
	renumber(cards)
	col.Cards = cards
	next.Columns[ci] = col
	return &next, true
}

func updateCard(s *domain.Snapshot, cardID string, patch domain.CardPatch) (*domain.Snapshot, bool) {
	ci, ki, ok := s.FindCard(cardID)
	if !ok {
		return s, false
	}

	next := *s
	next.Columns = cloneColumns(s.Columns)
	col := next.Columns[ci]
	col.Cards = append([]domain.Card(nil), col.Cards...)
	col.Cards[ki] = patch.Apply(col.Cards[ki])
	next.Columns[ci] = col
	return &next, true
}

func removeCard(s *domain.Snapshot, cardID string) (*domain.Snapshot, bool) {
	ci, ki, ok := s.FindCard(cardID)
	if !ok {
		return s, false
	}

	next := *s
	next.Columns = cloneColumns(s.Columns)
	col := next.Columns[ci]
	cards := make([]domain.Card, 0, len(col.Cards)-1)
	cards = append(cards, col.Cards[:ki]...)
	cards = append(cards, col.Cards[ki+1:]...)
	renumber(cards)
	col.Cards = cards
	next.Columns[ci] = col
	return &next, true
}

// moveCard removes the card from wherever it currently sits and splices it
// into the destination at index, clamped to the destination length. The
// card's current column is used rather than fromColumnID so diverged
// snapshots still converge on the same order.
func moveCard(s *domain.Snapshot, cardID, toColumnID string, index int) (*domain.Snapshot, bool) {
	ci, ki, ok := s.FindCard(cardID)
	if !ok {
		return s, false
	}
	di := s.ColumnIndex(toColumnID)
	if di < 0 {
		return s, false
	}

	next := *s
	next.Columns = cloneColumns(s.Columns)

	src := next.Columns[ci]
	card := src.Cards[ki]
	remaining := make([]domain.Card, 0, len(src.Cards)-1)
	remaining = append(remaining, src.Cards[:ki]...)
	remaining = append(remaining, src.Cards[ki+1:]...)
	src.Cards = remaining
	next.Columns[ci] = src

	dst := next.Columns[di]
	if index > len(dst.Cards) {
		index = len(dst.Cards)
	}
	if index < 0 {
		index = 0
	}
	card.ColumnID = toColumnID
	cards := make([]domain.Card, 0, len(dst.Cards)+1)
	cards = append(cards, dst.Cards[:index]...)
	cards = append(cards, card)
	cards = append(cards, dst.Cards[index:]...)
	renumber(cards)
	dst.Cards = cards
	next.Columns[di] = dst

	if ci != di {
		renumber(next.Columns[ci].Cards)
	}
	return &next, true
}

func addColumn(s *domain.Snapshot, column domain.Column) (*domain.Snapshot, bool) {
	if s.ColumnIndex(column.ID) >= 0 {
		return s, false
	}

	next := *s
	cols := make([]domain.Column, 0, len(s.Columns)+1)
	cols = append(cols, s.Columns...)
	column.Cards = append([]domain.Card(nil), column.Cards...)
	for i := range column.Cards {
		column.Cards[i].ColumnID = column.ID
	}
	cols = append(cols, column)
	for i := range cols {
		cols[i].Position = i
	}
	next.Columns = cols
	return &next, true
}

func updateColumn(s *domain.Snapshot, columnID string, patch domain.ColumnPatch) (*domain.Snapshot, bool) {
	ci := s.ColumnIndex(columnID)
	if ci < 0 {
		return s, false
	}

	next := *s
	next.Columns = cloneColumns(s.Columns)
	next.Columns[ci] = patch.Apply(next.Columns[ci])
	return &next, true
}

// removeColumn drops the column together with the cards it holds.
func removeColumn(s *domain.Snapshot, columnID string) (*domain.Snapshot, bool) {
	ci := s.ColumnIndex(columnID)
	if ci < 0 {
		return s, false
	}

	next := *s
	cols := make([]domain.Column, 0, len(s.Columns)-1)
	cols = append(cols, s.Columns[:ci]...)
	cols = append(cols, s.Columns[ci+1:]...)
	for i := range cols {
		cols[i].Position = i
	}
	next.Columns = cols
	return &next, true
}

func mergeBoard(s *domain.Snapshot, patch domain.BoardPatch) *domain.Snapshot {
	next := *s
	next.Board = patch.Apply(s.Board)
	return &next
}
