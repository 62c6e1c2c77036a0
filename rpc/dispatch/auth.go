package dispatch

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/hed/rpc/transport/base"
)

var (
	// ErrInvalidID is returned by Build for an id above the builder's maximum
	ErrInvalidID = errors.New("dispatch: method id out of range")
	// ErrNilHandler is returned by Build for an entry without handler
	ErrNilHandler = errors.New("dispatch: nil handler")
	// ErrDuplicateID is returned by Build when an id was allowed twice
	ErrDuplicateID = errors.New("dispatch: duplicate method id")
)

// Entry grants the members of Group access to the handler of method ID
type Entry struct {
	ID      uint32
	Group   uint32
	Handler Handler
}

// AuthList is the immutable set of entries a Dispatcher installs on every
// connection. It is created by a Builder.
type AuthList struct {
	idMax   uint32
	entries []Entry
}

// IDMax returns the highest method id of the list
func (l *AuthList) IDMax() uint32 { return l.idMax }

// Len returns the number of entries
func (l *AuthList) Len() int { return len(l.entries) }

// Entries returns a copy of the entries in the order they were allowed
func (l *AuthList) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Builder collects entries for an AuthList. The first invalid Allow call is
// reported by Build.
type Builder struct {
	idMax   uint32
	entries []Entry
	seen    map[uint32]struct{}
	err     error
}

// NewBuilder starts an AuthList for method ids 0..idMax
func NewBuilder(idMax uint32) *Builder {
	return &Builder{idMax: idMax, seen: make(map[uint32]struct{})}
}

// Allow grants group access to the handler for id
func (b *Builder) Allow(id, group uint32, handler Handler) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case id > b.idMax:
		b.err = fmt.Errorf("%w: %d > %d", ErrInvalidID, id, b.idMax)
	case handler == nil:
		b.err = fmt.Errorf("%w: id %d", ErrNilHandler, id)
	default:
		if _, ok := b.seen[id]; ok {
			b.err = fmt.Errorf("%w: %d", ErrDuplicateID, id)
			return b
		}
		b.seen[id] = struct{}{}
		b.entries = append(b.entries, Entry{ID: id, Group: group, Handler: handler})
	}
	return b
}

// Build returns the finished list
func (b *Builder) Build() (*AuthList, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &AuthList{idMax: b.idMax, entries: append([]Entry(nil), b.entries...)}, nil
}

// Permit decides whether peer may call the handler of e. Access is denied
// unless the peer is the super user or a member of the entry's group.
func Permit(peer base.Principal, e Entry) bool {
	return peer.IsRoot() || peer.InGroup(e.Group)
}
