package chain

import (
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

// Order is the materialized sequence of one owner's members. It is a
// short-lived value: build it for an operation and drop it afterwards.
type Order[M Member] struct {
	owner   int64
	members []M
	index   map[int64]int
}

func corrupt(owner int64, format string, args ...any) error {
	return fmt.Errorf("%w: owner %d: %s", domain.ErrChainCorrupt, owner, fmt.Sprintf(format, args...))
}

// Materialize computes the order of members, which must be every member of
// owner. It fails with domain.ErrChainCorrupt unless the successor
// references form a single path visiting each member exactly once.
func Materialize[M Member](owner int64, members []M) (*Order[M], error) {
	byID := make(map[int64]M, len(members))
	for _, m := range members {
		if m.ChainOwner() != owner {
			return nil, corrupt(owner, "member %d belongs to owner %d", m.ChainID(), m.ChainOwner())
		}
		if _, dup := byID[m.ChainID()]; dup {
			return nil, corrupt(owner, "duplicate member %d", m.ChainID())
		}
		byID[m.ChainID()] = m
	}

	referenced := make(map[int64]int64, len(members))
	for _, m := range members {
		next := m.ChainNext()
		if next == nil {
			continue
		}
		if _, ok := byID[*next]; !ok {
			return nil, corrupt(owner, "member %d points to unknown member %d", m.ChainID(), *next)
		}
		if prev, seen := referenced[*next]; seen {
			return nil, corrupt(owner, "members %d and %d both precede %d", prev, m.ChainID(), *next)
		}
		referenced[*next] = m.ChainID()
	}

	o := &Order[M]{
		owner:   owner,
		members: make([]M, 0, len(members)),
		index:   make(map[int64]int, len(members)),
	}
	if len(members) == 0 {
		return o, nil
	}

	var heads []M
	for _, m := range members {
		if _, ok := referenced[m.ChainID()]; !ok {
			heads = append(heads, m)
		}
	}
	if len(heads) != 1 {
		return nil, corrupt(owner, "found %d heads among %d members", len(heads), len(members))
	}

	cur, ok := heads[0], true
	for ok {
		if len(o.members) == len(members) {
			return nil, corrupt(owner, "walk did not terminate after %d members", len(members))
		}
		o.index[cur.ChainID()] = len(o.members)
		o.members = append(o.members, cur)

		next := cur.ChainNext()
		if next == nil {
			break
		}
		cur, ok = byID[*next]
	}

	if len(o.members) != len(members) {
		return nil, corrupt(owner, "only %d of %d members reachable from head", len(o.members), len(members))
	}
	return o, nil
}

// Owner returns the identity of the aggregate the order belongs to.
func (o *Order[M]) Owner() int64 { return o.owner }

// Len returns the number of members.
func (o *Order[M]) Len() int { return len(o.members) }

// Members returns the members in order. The slice is a copy.
func (o *Order[M]) Members() []M {
	out := make([]M, len(o.members))
	copy(out, o.members)
	return out
}

// First returns the head of the chain.
func (o *Order[M]) First() (M, bool) {
	if len(o.members) == 0 {
		var zero M
		return zero, false
	}
	return o.members[0], true
}

// Get returns the member with the given identity.
func (o *Order[M]) Get(id int64) (M, bool) {
	i, ok := o.index[id]
	if !ok {
		var zero M
		return zero, false
	}
	return o.members[i], true
}

// indexOf returns the position of id, or -1.
func (o *Order[M]) indexOf(id int64) int {
	if i, ok := o.index[id]; ok {
		return i
	}
	return -1
}

// Predecessor returns the member immediately before id.
func (o *Order[M]) Predecessor(id int64) (M, bool) {
	i := o.indexOf(id)
	if i <= 0 {
		var zero M
		return zero, false
	}
	return o.members[i-1], true
}
