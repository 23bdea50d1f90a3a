package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/domain"
)

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// EntityKey
// ---------------------------------------------------------------------------

func TestEntityKey_StringAndParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    domain.EntityKey
		wantErr bool
	}{
		{name: "card", in: "card:c1", want: domain.NewEntityKey(domain.EntityCard, "c1")},
		{name: "column", in: "column:todo", want: domain.NewEntityKey(domain.EntityColumn, "todo")},
		{name: "id with colon", in: "board:a:b", want: domain.NewEntityKey(domain.EntityBoard, "a:b")},
		{name: "unknown type", in: "list:l1", wantErr: true},
		{name: "missing id", in: "card:", wantErr: true},
		{name: "no separator", in: "card", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := domain.ParseEntityKey(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrMalformedEvent))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

// ---------------------------------------------------------------------------
// Patches
// ---------------------------------------------------------------------------

func TestCardPatch_Apply(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	base := domain.Card{ID: "c1", ColumnID: "a", Title: "old", Description: "keep", Labels: []string{"x"}}

	t.Run("overwrites only set fields", func(t *testing.T) {
		t.Parallel()

		got := domain.CardPatch{Title: strPtr("new"), DueAt: &due}.Apply(base)
		assert.Equal(t, "new", got.Title)
		assert.Equal(t, "keep", got.Description)
		assert.Equal(t, []string{"x"}, got.Labels)
		require.NotNil(t, got.DueAt)
		assert.True(t, due.Equal(*got.DueAt))
		assert.Equal(t, "old", base.Title, "input must not change")
	})

	t.Run("labels are copied", func(t *testing.T) {
		t.Parallel()

		labels := []string{"a", "b"}
		got := domain.CardPatch{Labels: &labels}.Apply(base)
		labels[0] = "z"
		assert.Equal(t, []string{"a", "b"}, got.Labels)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		assert.True(t, domain.CardPatch{}.Empty())
		assert.False(t, domain.CardPatch{Title: strPtr("")}.Empty())
	})
}

func TestColumnAndBoardPatch_Apply(t *testing.T) {
	t.Parallel()

	col := domain.ColumnPatch{Color: strPtr("#fff")}.Apply(domain.Column{ID: "a", Title: "Todo"})
	assert.Equal(t, "Todo", col.Title)
	assert.Equal(t, "#fff", col.Color)

	board := domain.BoardPatch{Title: strPtr("Roadmap")}.Apply(domain.Board{ID: "b", Background: "blue"})
	assert.Equal(t, "Roadmap", board.Title)
	assert.Equal(t, "blue", board.Background)
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func TestEncodeDecodeFrame(t *testing.T) {
	t.Parallel()

	data, err := domain.EncodeFrame(domain.EventBoardJoin, domain.BoardJoin{WorkspaceID: "w1"})
	require.NoError(t, err)

	f, err := domain.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, domain.EventBoardJoin, f.Type)

	p, err := domain.DecodePayload[domain.BoardJoin](f.Payload)
	require.NoError(t, err)
	assert.Equal(t, "w1", p.WorkspaceID)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`not json`, `{}`, `{"type":""}`} {
		_, err := domain.DecodeFrame([]byte(in))
		require.Error(t, err, in)
		assert.ErrorIs(t, err, domain.ErrMalformedEvent)
	}

	_, err := domain.DecodePayload[domain.CardMoved](json.RawMessage(nil))
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestKindEvents(t *testing.T) {
	t.Parallel()

	kinds := []domain.Kind{
		domain.KindCardCreated, domain.KindCardUpdated, domain.KindCardDeleted, domain.KindCardMoved,
		domain.KindColumnCreated, domain.KindColumnUpdated, domain.KindColumnDeleted, domain.KindBoardUpdated,
	}
	for _, k := range kinds {
		event := k.Event()
		require.NotEmpty(t, event, k)

		back, ok := domain.KindForEvent(event)
		require.True(t, ok)
		assert.Equal(t, k, back)
	}

	_, ok := domain.KindForEvent(domain.EventCursorMove)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestMutationPayloads_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{"card created ok", domain.CardCreated{WorkspaceID: "w", ColumnID: "a", Card: domain.Card{ID: "c"}}, false},
		{"card created no card id", domain.CardCreated{WorkspaceID: "w", ColumnID: "a"}, true},
		{"card updated ok", domain.CardUpdated{WorkspaceID: "w", CardID: "c", Updates: domain.CardPatch{Title: strPtr("x")}}, false},
		{"card updated empty patch", domain.CardUpdated{WorkspaceID: "w", CardID: "c"}, true},
		{"card deleted no workspace", domain.CardDeleted{CardID: "c"}, true},
		{"card move ok", domain.CardMoved{WorkspaceID: "w", CardID: "c", FromColumnID: "a", ToColumnID: "b"}, false},
		{"card move negative index", domain.CardMoved{WorkspaceID: "w", CardID: "c", FromColumnID: "a", ToColumnID: "b", NewIndex: -1}, true},
		{"column created ok", domain.ColumnCreated{WorkspaceID: "w", Column: domain.Column{ID: "a"}}, false},
		{"column updated empty", domain.ColumnUpdated{WorkspaceID: "w", ColumnID: "a"}, true},
		{"column deleted ok", domain.ColumnDeleted{WorkspaceID: "w", ColumnID: "a"}, false},
		{"board updated ok", domain.BoardUpdated{WorkspaceID: "w", Updates: domain.BoardPatch{Title: strPtr("t")}}, false},
		{"board updated no workspace", domain.BoardUpdated{Updates: domain.BoardPatch{Title: strPtr("t")}}, true},
		{"editing unknown type", domain.EditingSignal{EntityType: "lane", EntityID: "x"}, true},
		{"editing ok", domain.EditingSignal{EntityType: domain.EntityCard, EntityID: "x"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.payload.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrMalformedEvent)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRole_CanWrite(t *testing.T) {
	t.Parallel()

	assert.True(t, domain.RoleEditor.CanWrite())
	assert.True(t, domain.Role("").CanWrite())
	assert.False(t, domain.RoleViewer.CanWrite())
}
