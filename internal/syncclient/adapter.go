package syncclient

import (
	"fmt"
	"sync"

	"github.com/gosuda/boardsync/internal/domain"
)

// Outcome reports what folding one mutation did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDiscarded Outcome = "discarded" // stale version
	OutcomeEcho      Outcome = "echo"
	OutcomeIgnored   Outcome = "ignored" // target missing or already present
)

// Adapter folds relayed mutations into the locally held snapshot. Each
// fold publishes a new *domain.Snapshot; previously returned snapshots are
// never modified, so callers may compare pointers to detect change.
type Adapter struct {
	echo *EchoFilter

	mu       sync.RWMutex
	snapshot *domain.Snapshot
	versions map[domain.EntityKey]int64
	epoch    string
}

// NewAdapter returns an adapter holding an empty snapshot. A nil echo gets
// a fresh filter.
func NewAdapter(echo *EchoFilter) *Adapter {
	if echo == nil {
		echo = NewEchoFilter()
	}
	return &Adapter{
		echo:     echo,
		snapshot: &domain.Snapshot{Columns: []domain.Column{}},
		versions: make(map[domain.EntityKey]int64),
	}
}

// Echo returns the filter the adapter consults.
func (a *Adapter) Echo() *EchoFilter {
	return a.echo
}

// SetEpoch records the epoch of the server's version counters. Versions
// held from another epoch are dropped, since the new counters restart
// from zero and would otherwise lose to them.
func (a *Adapter) SetEpoch(epoch string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if epoch == a.epoch {
		return
	}
	a.epoch = epoch
	clear(a.versions)
}

// Reset installs an authoritative snapshot fetched from durable storage.
// Versions from the current epoch are kept so in-flight stale updates are
// still discarded.
func (a *Adapter) Reset(s *domain.Snapshot) {
	a.echo.Settle(s)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = s
}

// Snapshot returns the current snapshot. Treat it as read-only.
func (a *Adapter) Snapshot() *domain.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Version returns the locally held version for key, 0 if unseen.
func (a *Adapter) Version(key domain.EntityKey) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.versions[key]
}

// ApplyInbound folds a mutation received from the room.
func (a *Adapter) ApplyInbound(m domain.Mutation) (Outcome, error) {
	return a.apply(m, true)
}

// ApplyLocal folds an optimistic local mutation before it is emitted.
// Created ids are remembered by the echo filter.
func (a *Adapter) ApplyLocal(m domain.Mutation) (Outcome, error) {
	return a.apply(m, false)
}

func (a *Adapter) apply(m domain.Mutation, inbound bool) (Outcome, error) {
	switch m.Kind {
	case domain.KindCardCreated:
		p, err := domain.DecodePayload[domain.CardCreated](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		key := domain.NewEntityKey(domain.EntityCard, p.Card.ID)
		return a.create(m, inbound, key, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return addCard(s, p.ColumnID, p.Card)
		})

	case domain.KindColumnCreated:
		p, err := domain.DecodePayload[domain.ColumnCreated](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		key := domain.NewEntityKey(domain.EntityColumn, p.Column.ID)
		return a.create(m, inbound, key, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return addColumn(s, p.Column)
		})

	case domain.KindCardUpdated:
		p, err := domain.DecodePayload[domain.CardUpdated](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		key := domain.NewEntityKey(domain.EntityCard, p.CardID)
		return a.update(m, inbound, key, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return updateCard(s, p.CardID, p.Updates)
		})

	case domain.KindColumnUpdated:
		p, err := domain.DecodePayload[domain.ColumnUpdated](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		key := domain.NewEntityKey(domain.EntityColumn, p.ColumnID)
		return a.update(m, inbound, key, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return updateColumn(s, p.ColumnID, p.Updates)
		})

	case domain.KindBoardUpdated:
		p, err := domain.DecodePayload[domain.BoardUpdated](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		key := domain.NewEntityKey(domain.EntityBoard, p.WorkspaceID)
		return a.update(m, inbound, key, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return mergeBoard(s, p.Updates), true
		})

	case domain.KindCardDeleted:
		p, err := domain.DecodePayload[domain.CardDeleted](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		a.echo.Forget(domain.NewEntityKey(domain.EntityCard, p.CardID))
		return a.plain(m, inbound, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return removeCard(s, p.CardID)
		})

	case domain.KindCardMoved:
		p, err := domain.DecodePayload[domain.CardMoved](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		return a.plain(m, inbound, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return moveCard(s, p.CardID, p.ToColumnID, p.NewIndex)
		})

	case domain.KindColumnDeleted:
		p, err := domain.DecodePayload[domain.ColumnDeleted](m.Payload)
		if err != nil {
			return "", fmt.Errorf("syncclient.Adapter: %s: %w", m.Kind, err)
		}
		a.echo.Forget(domain.NewEntityKey(domain.EntityColumn, p.ColumnID))
		return a.plain(m, inbound, func(s *domain.Snapshot) (*domain.Snapshot, bool) {
			return removeColumn(s, p.ColumnID)
		})

	default:
		return "", fmt.Errorf("syncclient.Adapter: kind %q: %w", m.Kind, domain.ErrUnknownEvent)
	}
}

type foldFunc func(*domain.Snapshot) (*domain.Snapshot, bool)

func (a *Adapter) create(m domain.Mutation, inbound bool, key domain.EntityKey, fold foldFunc) (Outcome, error) {
	if inbound && a.echo.IsEcho(m, &key) {
		return OutcomeEcho, nil
	}
	if !inbound {
		a.echo.Remember(key)
	}
	return a.plain(m, false, fold)
}

func (a *Adapter) plain(m domain.Mutation, inbound bool, fold foldFunc) (Outcome, error) {
	if inbound && a.echo.IsEcho(m, nil) {
		return OutcomeEcho, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next, changed := fold(a.snapshot)
	if !changed {
		return OutcomeIgnored, nil
	}
	a.snapshot = next
	return OutcomeApplied, nil
}

// update applies last-write-wins: an incoming version below the local one
// is discarded, anything else is merged and becomes the local version.
func (a *Adapter) update(m domain.Mutation, inbound bool, key domain.EntityKey, fold foldFunc) (Outcome, error) {
	if inbound && a.echo.IsEcho(m, nil) {
		return OutcomeEcho, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if m.Version > 0 {
		if m.Version < a.versions[key] {
			return OutcomeDiscarded, nil
		}
		a.versions[key] = m.Version
	}

	next, changed := fold(a.snapshot)
	if !changed {
		return OutcomeIgnored, nil
	}
	a.snapshot = next
	return OutcomeApplied, nil
}
