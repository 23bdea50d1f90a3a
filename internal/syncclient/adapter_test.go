package syncclient_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/syncclient"
)

func strPtr(s string) *string { return &s }

func mutation(t *testing.T, kind domain.Kind, origin string, version int64, payload any) domain.Mutation {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Mutation{WorkspaceID: "W", Kind: kind, Origin: origin, Version: version, Payload: raw}
}

// board: column a [c1, c2], column b [c3]
func seededAdapter(t *testing.T) *syncclient.Adapter {
	t.Helper()

	a := syncclient.NewAdapter(syncclient.NewEchoFilter())
	a.Reset(&domain.Snapshot{
		Board: domain.Board{ID: "W", Title: "Board"},
		Columns: []domain.Column{
			{ID: "a", BoardID: "W", Title: "Todo", Position: 0, Cards: []domain.Card{
				{ID: "c1", ColumnID: "a", Title: "one", Position: 0},
				{ID: "c2", ColumnID: "a", Title: "two", Position: 1},
			}},
			{ID: "b", BoardID: "W", Title: "Done", Position: 1, Cards: []domain.Card{
				{ID: "c3", ColumnID: "b", Title: "three", Position: 0},
			}},
		},
	})
	return a
}

func cardIDs(col domain.Column) []string {
	ids := make([]string, 0, len(col.Cards))
	for _, c := range col.Cards {
		ids = append(ids, c.ID)
	}
	return ids
}

func titleUpdate(t *testing.T, version int64, title string) domain.Mutation {
	t.Helper()
	return mutation(t, domain.KindCardUpdated, "other", version, domain.CardUpdated{
		WorkspaceID: "W", ColumnID: "a", CardID: "c1", Updates: domain.CardPatch{Title: strPtr(title)},
	})
}

func TestAdapter_LastWriteWins(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	key := domain.NewEntityKey(domain.EntityCard, "c1")

	out, err := a.ApplyInbound(titleUpdate(t, 5, "v5"))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	assert.Equal(t, int64(5), a.Version(key))

	before := a.Snapshot()
	out, err = a.ApplyInbound(titleUpdate(t, 3, "stale"))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeDiscarded, out)
	assert.Same(t, before, a.Snapshot())
	assert.Equal(t, int64(5), a.Version(key))

	out, err = a.ApplyInbound(titleUpdate(t, 6, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	card, ok := a.Snapshot().Card("c1")
	require.True(t, ok)
	assert.Equal(t, "fresh", card.Title)
	assert.Equal(t, int64(6), a.Version(key))
}

func TestAdapter_OutOfOrderDelivery(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)

	_, err := a.ApplyInbound(titleUpdate(t, 2, "second"))
	require.NoError(t, err)
	out, err := a.ApplyInbound(titleUpdate(t, 1, "first"))
	require.NoError(t, err)

	assert.Equal(t, syncclient.OutcomeDiscarded, out)
	card, _ := a.Snapshot().Card("c1")
	assert.Equal(t, "second", card.Title)
}

func TestAdapter_EqualVersionIsApplied(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	_, err := a.ApplyInbound(titleUpdate(t, 4, "x"))
	require.NoError(t, err)

	out, err := a.ApplyInbound(titleUpdate(t, 4, "y"))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
}

func TestAdapter_MoveCard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		move  domain.CardMoved
		wantA []string
		wantB []string
	}{
		{
			name:  "to end of other column",
			move:  domain.CardMoved{CardID: "c3", FromColumnID: "b", ToColumnID: "a", NewIndex: 2},
			wantA: []string{"c1", "c2", "c3"},
			wantB: []string{},
		},
		{
			name:  "to top of other column",
			move:  domain.CardMoved{CardID: "c2", FromColumnID: "a", ToColumnID: "b", NewIndex: 0},
			wantA: []string{"c1"},
			wantB: []string{"c2", "c3"},
		},
		{
			name:  "within column",
			move:  domain.CardMoved{CardID: "c2", FromColumnID: "a", ToColumnID: "a", NewIndex: 0},
			wantA: []string{"c2", "c1"},
			wantB: []string{"c3"},
		},
		{
			name:  "index clamped",
			move:  domain.CardMoved{CardID: "c1", FromColumnID: "a", ToColumnID: "b", NewIndex: 99},
			wantA: []string{"c2"},
			wantB: []string{"c3", "c1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := seededAdapter(t)
			tc.move.WorkspaceID = "W"
			out, err := a.ApplyInbound(mutation(t, domain.KindCardMoved, "other", 0, tc.move))
			require.NoError(t, err)
			require.Equal(t, syncclient.OutcomeApplied, out)

			snap := a.Snapshot()
			assert.Equal(t, tc.wantA, cardIDs(snap.Columns[0]))
			assert.Equal(t, tc.wantB, cardIDs(snap.Columns[1]))
			for _, col := range snap.Columns {
				for i, c := range col.Cards {
					assert.Equal(t, i, c.Position, "%s in %s", c.ID, col.ID)
					assert.Equal(t, col.ID, c.ColumnID)
				}
			}
		})
	}
}

func TestAdapter_FoldDoesNotMutatePrevious(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	before := a.Snapshot()

	_, err := a.ApplyInbound(mutation(t, domain.KindCardMoved, "other", 0, domain.CardMoved{
		WorkspaceID: "W", CardID: "c1", FromColumnID: "a", ToColumnID: "b", NewIndex: 0,
	}))
	require.NoError(t, err)
	_, err = a.ApplyInbound(titleUpdate(t, 1, "renamed"))
	require.NoError(t, err)

	after := a.Snapshot()
	assert.NotSame(t, before, after)
	assert.Equal(t, []string{"c1", "c2"}, cardIDs(before.Columns[0]))
	assert.Equal(t, "one", before.Columns[0].Cards[0].Title)
	assert.Equal(t, []string{"c1", "c3"}, cardIDs(after.Columns[1]))
	assert.Equal(t, "renamed", after.Columns[1].Cards[0].Title)
}

func TestAdapter_CreateAndDelete(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)

	created := domain.CardCreated{WorkspaceID: "W", ColumnID: "b", Card: domain.Card{ID: "c9", Title: "new"}}
	out, err := a.ApplyInbound(mutation(t, domain.KindCardCreated, "other", 0, created))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	assert.Equal(t, []string{"c3", "c9"}, cardIDs(a.Snapshot().Columns[1]))

	out, err = a.ApplyInbound(mutation(t, domain.KindCardCreated, "other", 0, created))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeIgnored, out, "duplicate create")

	out, err = a.ApplyInbound(mutation(t, domain.KindColumnCreated, "other", 0, domain.ColumnCreated{
		WorkspaceID: "W", Column: domain.Column{ID: "c", Title: "Later"},
	}))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	require.Len(t, a.Snapshot().Columns, 3)
	assert.Equal(t, 2, a.Snapshot().Columns[2].Position)

	out, err = a.ApplyInbound(mutation(t, domain.KindColumnDeleted, "other", 0, domain.ColumnDeleted{WorkspaceID: "W", ColumnID: "a"}))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	_, ok := a.Snapshot().Card("c1")
	assert.False(t, ok, "cards go with their column")

	out, err = a.ApplyInbound(mutation(t, domain.KindCardDeleted, "other", 0, domain.CardDeleted{WorkspaceID: "W", CardID: "missing"}))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeIgnored, out)
}

func TestAdapter_UpdateMissingTargetStillRecordsVersion(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	m := mutation(t, domain.KindColumnUpdated, "other", 7, domain.ColumnUpdated{
		WorkspaceID: "W", ColumnID: "gone", Updates: domain.ColumnPatch{Title: strPtr("x")},
	})

	out, err := a.ApplyInbound(m)
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeIgnored, out)
	assert.Equal(t, int64(7), a.Version(domain.NewEntityKey(domain.EntityColumn, "gone")))
}

func TestAdapter_BoardUpdate(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	out, err := a.ApplyInbound(mutation(t, domain.KindBoardUpdated, "other", 1, domain.BoardUpdated{
		WorkspaceID: "W", Updates: domain.BoardPatch{Title: strPtr("Roadmap")},
	}))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	assert.Equal(t, "Roadmap", a.Snapshot().Board.Title)
	assert.Equal(t, int64(1), a.Version(domain.NewEntityKey(domain.EntityBoard, "W")))
}

func TestAdapter_Echo(t *testing.T) {
	t.Parallel()

	t.Run("by origin", func(t *testing.T) {
		t.Parallel()

		echo := syncclient.NewEchoFilter()
		echo.SetSelf("me")
		a := syncclient.NewAdapter(echo)
		a.Reset(seededAdapter(t).Snapshot())
		before := a.Snapshot()

		m := titleUpdate(t, 9, "mine")
		m.Origin = "me"
		out, err := a.ApplyInbound(m)
		require.NoError(t, err)
		assert.Equal(t, syncclient.OutcomeEcho, out)
		assert.Same(t, before, a.Snapshot())
	})

	t.Run("by minted id after reconnect", func(t *testing.T) {
		t.Parallel()

		a := seededAdapter(t)
		a.Echo().SetSelf("old-session")
		created := domain.CardCreated{WorkspaceID: "W", ColumnID: "a", Card: domain.Card{ID: "mine"}}

		out, err := a.ApplyLocal(mutation(t, domain.KindCardCreated, "", 0, created))
		require.NoError(t, err)
		assert.Equal(t, syncclient.OutcomeApplied, out)

		a.Echo().SetSelf("new-session")
		out, err = a.ApplyInbound(mutation(t, domain.KindCardCreated, "old-session", 0, created))
		require.NoError(t, err)
		assert.Equal(t, syncclient.OutcomeEcho, out)
		assert.Equal(t, []string{"c1", "c2", "mine"}, cardIDs(a.Snapshot().Columns[0]))
	})
}

func TestAdapter_ResetKeepsVersions(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	a.SetEpoch("e1")
	_, err := a.ApplyInbound(titleUpdate(t, 5, "v5"))
	require.NoError(t, err)

	a.SetEpoch("e1")
	a.Reset(seededAdapter(t).Snapshot())
	out, err := a.ApplyInbound(titleUpdate(t, 4, "late"))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeDiscarded, out)
	assert.Equal(t, int64(5), a.Version(domain.NewEntityKey(domain.EntityCard, "c1")))
}

func TestAdapter_NewEpochDropsVersions(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	a.SetEpoch("e1")
	_, err := a.ApplyInbound(titleUpdate(t, 5, "A"))
	require.NoError(t, err)

	// Server restarted with an in-memory ledger: counters start over.
	a.SetEpoch("e2")
	a.Reset(seededAdapter(t).Snapshot())
	assert.Zero(t, a.Version(domain.NewEntityKey(domain.EntityCard, "c1")))

	out, err := a.ApplyInbound(titleUpdate(t, 1, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeApplied, out)
	card, ok := a.Snapshot().Card("c1")
	require.True(t, ok)
	assert.Equal(t, "fresh", card.Title)
}

func TestAdapter_ResetSettlesMintedIDs(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	for _, id := range []string{"m1", "m2"} {
		_, err := a.ApplyLocal(mutation(t, domain.KindCardCreated, "", 0, domain.CardCreated{
			WorkspaceID: "W", ColumnID: "a", Card: domain.Card{ID: id, Title: id},
		}))
		require.NoError(t, err)
	}
	require.Equal(t, 2, a.Echo().Pending())

	// m1 reached the store; m2 is still unconfirmed.
	snap := seededAdapter(t).Snapshot()
	cols := append([]domain.Column(nil), snap.Columns...)
	cols[0].Cards = append(append([]domain.Card(nil), cols[0].Cards...), domain.Card{ID: "m1", ColumnID: "a"})
	a.Reset(&domain.Snapshot{Board: snap.Board, Columns: cols})

	assert.Equal(t, 1, a.Echo().Pending())
	out, err := a.ApplyInbound(mutation(t, domain.KindCardCreated, "someone", 0, domain.CardCreated{
		WorkspaceID: "W", ColumnID: "a", Card: domain.Card{ID: "m1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, syncclient.OutcomeIgnored, out, "duplicate create folds idempotently")
}

func TestAdapter_UnknownKind(t *testing.T) {
	t.Parallel()

	a := seededAdapter(t)
	_, err := a.ApplyInbound(domain.Mutation{Kind: "lane.created", Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	_, err = a.ApplyInbound(domain.Mutation{Kind: domain.KindCardMoved})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}
