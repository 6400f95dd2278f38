package pulse

import "github.com/pipelined/pulse/token"

// TokenSet is the set of tokens a handle is allowed to act on. Lookups
// are constant-time bit tests, cheap enough for hot-path containment
// checks. The zero value is the empty set.
type TokenSet struct {
	units    uint8
	buffers  uint64
	routines uint16
}

// NewTokenSet collects the tokens of the provided domains into a set.
func NewTokenSet(domains ...token.Domain) TokenSet {
	var s TokenSet
	for _, d := range domains {
		if d.Zero() {
			continue
		}
		s.units |= 1 << d.Unit()
		s.buffers |= 1 << uint64(d.Buffer())
		s.routines |= 1 << d.Routine()
	}
	return s
}

// ContainsUnit reports whether the unit token is in the set.
func (s TokenSet) ContainsUnit(u token.Unit) bool {
	return u.Valid() && s.units&(1<<u) != 0
}

// ContainsBuffer reports whether the buffer token is in the set. Only
// complete token compositions can be members, so partial tokens never
// match.
func (s TokenSet) ContainsBuffer(b token.Buffer) bool {
	return b < 64 && s.buffers&(1<<uint64(b)) != 0
}

// ContainsRoutine reports whether the routine token is in the set.
func (s TokenSet) ContainsRoutine(r token.Routine) bool {
	return r.Valid() && s.routines&(1<<r) != 0
}

// ContainsDomain reports whether every token of the domain is in the set.
func (s TokenSet) ContainsDomain(d token.Domain) bool {
	return s.ContainsUnit(d.Unit()) && s.ContainsBuffer(d.Buffer()) && s.ContainsRoutine(d.Routine())
}

// Union returns the set holding the tokens of both sets.
func (s TokenSet) Union(other TokenSet) TokenSet {
	return TokenSet{
		units:    s.units | other.units,
		buffers:  s.buffers | other.buffers,
		routines: s.routines | other.routines,
	}
}

// Empty reports whether the set holds no tokens.
func (s TokenSet) Empty() bool {
	return s.units == 0 && s.buffers == 0 && s.routines == 0
}
