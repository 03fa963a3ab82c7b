package chain

import (
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

// Placement is the requested position of a new member: the head when After
// is nil, otherwise directly behind the member After.
type Placement struct {
	After *int64
}

// Head places a member first.
func Head() Placement { return Placement{} }

// After places a member directly behind id.
func After(id int64) Placement { return Placement{After: &id} }

// AfterPtr is After for an optional predecessor; nil means Head.
func AfterPtr(id *int64) Placement {
	if id == nil {
		return Head()
	}
	return After(*id)
}

func (p Placement) String() string {
	if p.After == nil {
		return "head"
	}
	return fmt.Sprintf("after %d", *p.After)
}

// Equivalence decides whether an existing member is a logical duplicate of a
// member about to be inserted.
type Equivalence[M Member] interface {
	// Matches reports whether m has the same defining attributes.
	Matches(m M) bool
	// Identical reports whether m also agrees on every remaining attribute.
	Identical(m M) bool
}

// GuardOutcome is the decision of Check.
type GuardOutcome string

const (
	// GuardAbsent means no equivalent member exists; insert.
	GuardAbsent GuardOutcome = "absent"
	// GuardExisting means an identical member already sits at the requested
	// position; the insertion is a no-op.
	GuardExisting GuardOutcome = "existing"
	// GuardConflict means an equivalent member exists elsewhere or differs.
	GuardConflict GuardOutcome = "conflict"
)

// Check is the uniqueness guard. It resolves the requested predecessor,
// which must belong to the order's owner, and looks for a member equivalent
// to eq. An equivalent member is returned only if it is identical and
// already occupies exactly the requested position; otherwise the request is
// a conflict. Existing members are never moved.
func Check[M Member](order *Order[M], at Placement, eq Equivalence[M]) (M, GuardOutcome, error) {
	var zero M

	var pred M
	if at.After != nil {
		p, ok := order.Get(*at.After)
		if !ok {
			return zero, GuardAbsent, fmt.Errorf("%w: predecessor %d in owner %d", domain.ErrNotFound, *at.After, order.Owner())
		}
		pred = p
	}

	var existing M
	found := false
	for _, m := range order.members {
		if eq.Matches(m) {
			existing, found = m, true
			break
		}
	}
	if !found {
		return zero, GuardAbsent, nil
	}

	if !eq.Identical(existing) {
		return zero, GuardConflict, fmt.Errorf("%w: member %d has the same key but different attributes", domain.ErrConflict, existing.ChainID())
	}

	if !occupies(order, existing, at, pred) {
		return zero, GuardConflict, fmt.Errorf("%w: equivalent member %d is not %s", domain.ErrConflict, existing.ChainID(), at)
	}
	return existing, GuardExisting, nil
}

func occupies[M Member](order *Order[M], m M, at Placement, pred M) bool {
	if at.After == nil {
		first, ok := order.First()
		return ok && first.ChainID() == m.ChainID()
	}
	next := pred.ChainNext()
	return next != nil && *next == m.ChainID()
}
