package core

import "sort"

// participants is the set of remote identities present in the room.
type participants struct {
	ids map[string]struct{}
}

func newParticipants() *participants {
	return &participants{ids: make(map[string]struct{})}
}

// Add inserts an identity. Returns true if newly added.
func (p *participants) Add(identity string) bool {
	if _, exists := p.ids[identity]; exists {
		return false
	}
	p.ids[identity] = struct{}{}
	return true
}

// Remove deletes an identity. Returns true if removed.
func (p *participants) Remove(identity string) bool {
	if _, exists := p.ids[identity]; !exists {
		return false
	}
	delete(p.ids, identity)
	return true
}

// List returns the identities in sorted order.
func (p *participants) List() []string {
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Empty returns true if nobody else is in the room.
func (p *participants) Empty() bool {
	return len(p.ids) == 0
}
