package syncclient

import (
	"sort"
	"sync"

	"github.com/gosuda/boardsync/internal/domain"
)

// PresenceView is the client-side index of who is in the room and who is
// editing what. Editors are keyed by the composite "type:id" entity key.
type PresenceView struct {
	mu           sync.RWMutex
	participants map[string]domain.Participant
	editors      map[string]map[string]struct{}
}

func NewPresenceView() *PresenceView {
	return &PresenceView{
		participants: make(map[string]domain.Participant),
		editors:      make(map[string]map[string]struct{}),
	}
}

// Apply folds one presence frame. It reports false for frames that are not
// presence events.
func (v *PresenceView) Apply(f domain.Frame) (bool, error) {
	switch f.Type {
	case domain.EventPresenceUpdate:
		state, err := domain.DecodePayload[domain.PresenceState](f.Payload)
		if err != nil {
			return true, err
		}
		v.replace(state)

	case domain.EventUserJoined:
		p, err := domain.DecodePayload[domain.UserJoined](f.Payload)
		if err != nil {
			return true, err
		}
		v.mu.Lock()
		v.participants[p.Participant.ID] = p.Participant
		v.mu.Unlock()

	case domain.EventUserLeft:
		p, err := domain.DecodePayload[domain.UserLeft](f.Payload)
		if err != nil {
			return true, err
		}
		v.mu.Lock()
		delete(v.participants, p.ParticipantID)
		for key, set := range v.editors {
			delete(set, p.ParticipantID)
			if len(set) == 0 {
				delete(v.editors, key)
			}
		}
		v.mu.Unlock()

	case domain.EventCursorUpdate:
		p, err := domain.DecodePayload[domain.CursorUpdate](f.Payload)
		if err != nil {
			return true, err
		}
		v.mu.Lock()
		if existing, ok := v.participants[p.ParticipantID]; ok {
			c := p.Cursor
			existing.Cursor = &c
			v.participants[p.ParticipantID] = existing
		}
		v.mu.Unlock()

	case domain.EventEditingStart, domain.EventEditingStop:
		p, err := domain.DecodePayload[domain.EditingChange](f.Payload)
		if err != nil {
			return true, err
		}
		key := domain.NewEntityKey(p.EntityType, p.EntityID).String()
		v.mu.Lock()
		if f.Type == domain.EventEditingStart {
			set, ok := v.editors[key]
			if !ok {
				set = make(map[string]struct{})
				v.editors[key] = set
			}
			set[p.ParticipantID] = struct{}{}
		} else if set, ok := v.editors[key]; ok {
			delete(set, p.ParticipantID)
			if len(set) == 0 {
				delete(v.editors, key)
			}
		}
		v.mu.Unlock()

	default:
		return false, nil
	}
	return true, nil
}

func (v *PresenceView) replace(state domain.PresenceState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.participants = make(map[string]domain.Participant, len(state.Participants))
	for _, p := range state.Participants {
		v.participants[p.ID] = p
	}
	v.editors = make(map[string]map[string]struct{}, len(state.Editors))
	for key, ids := range state.Editors {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		v.editors[key] = set
	}
}

// Participants returns everyone currently present, ordered by id.
func (v *PresenceView) Participants() []domain.Participant {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]domain.Participant, 0, len(v.participants))
	for _, p := range v.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Editors returns who is editing key, sorted. len() of the result is the
// "N people editing this" count.
func (v *PresenceView) Editors(key domain.EntityKey) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	set := v.editors[key.String()]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
