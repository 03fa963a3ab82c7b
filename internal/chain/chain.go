package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/metrics"
)

// Chain orders the members of one entity kind per owner.
type Chain[M Member, A any] struct {
	kind    string
	backend Backend[M, A]
	locks   *ownerLocks
	logger  *logging.Logger
	metrics *metrics.Registry
}

// Option configures a Chain.
type Option func(*options)

type options struct {
	logger  *logging.Logger
	metrics *metrics.Registry
}

// WithLogger sets the logger. Defaults to the package default logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records mutation counters in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// New creates a Chain for the entity kind named kind (used in logs and
// metrics) persisted through backend.
func New[M Member, A any](kind string, backend Backend[M, A], opts ...Option) *Chain[M, A] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	return &Chain[M, A]{
		kind:    kind,
		backend: backend,
		locks:   newOwnerLocks(),
		logger:  o.logger.WithComponent("chain").With("kind", kind),
		metrics: o.metrics,
	}
}

// Materialize returns the current order of owner's members.
func (c *Chain[M, A]) Materialize(ctx context.Context, owner int64) (*Order[M], error) {
	var order *Order[M]
	err := c.backend.Atomically(ctx, func(st Store[M, A]) error {
		var err error
		order, err = c.load(ctx, st, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// InsertFirst creates a member at the head of owner's chain.
func (c *Chain[M, A]) InsertFirst(ctx context.Context, owner int64, attrs A) (M, error) {
	unlock := c.locks.lock(owner)
	defer unlock()

	var created M
	err := c.backend.Atomically(ctx, func(st Store[M, A]) error {
		order, err := c.load(ctx, st, owner)
		if err != nil {
			return err
		}
		created, err = c.insertFirst(ctx, st, order, attrs)
		return err
	})
	c.observe("insert_first", err)
	return created, err
}

// InsertAfter creates a member directly behind predID, inheriting predID's
// former successor. It fails with domain.ErrNotFound if predID does not
// exist.
func (c *Chain[M, A]) InsertAfter(ctx context.Context, predID int64, attrs A) (M, error) {
	var zero M

	owner, err := c.ownerOf(ctx, predID)
	if err != nil {
		c.observe("insert_after", err)
		return zero, err
	}

	unlock := c.locks.lock(owner)
	defer unlock()

	var created M
	err = c.backend.Atomically(ctx, func(st Store[M, A]) error {
		pred, err := st.Get(ctx, predID)
		if err != nil {
			return err
		}
		if pred.ChainOwner() != owner {
			return fmt.Errorf("%w: member %d", domain.ErrNotFound, predID)
		}
		created, err = c.insertAfter(ctx, st, pred, attrs)
		return err
	})
	c.observe("insert_after", err)
	return created, err
}

// Insert runs the uniqueness guard and the insertion as one step: if an
// identical member already sits at the requested place it is returned with
// created false; if an equivalent member sits elsewhere the result is
// domain.ErrConflict; otherwise a new member is created at the requested
// place.
func (c *Chain[M, A]) Insert(ctx context.Context, owner int64, at Placement, attrs A, eq Equivalence[M]) (M, bool, error) {
	unlock := c.locks.lock(owner)
	defer unlock()

	var (
		member  M
		created bool
	)
	err := c.backend.Atomically(ctx, func(st Store[M, A]) error {
		order, err := c.load(ctx, st, owner)
		if err != nil {
			return err
		}

		existing, outcome, err := Check(order, at, eq)
		c.guardOutcome(outcome, err)
		if err != nil {
			return err
		}
		if outcome == GuardExisting {
			member = existing
			return nil
		}

		if at.After == nil {
			member, err = c.insertFirst(ctx, st, order, attrs)
		} else {
			pred, _ := order.Get(*at.After)
			member, err = c.insertAfter(ctx, st, pred, attrs)
		}
		created = err == nil
		return err
	})
	if err != nil {
		var zero M
		c.observe("insert", err)
		return zero, false, err
	}
	if created {
		c.observe("insert", nil)
		c.logger.Debug("member inserted", "owner", owner, "id", member.ChainID(), "placement", at.String())
	}
	return member, created, nil
}

// Delete removes a member and re-points its predecessor to its successor.
// It returns false if no such member exists.
func (c *Chain[M, A]) Delete(ctx context.Context, id int64) (bool, error) {
	owner, err := c.ownerOf(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		c.observe("delete", err)
		return false, err
	}

	unlock := c.locks.lock(owner)
	defer unlock()

	deleted := false
	err = c.backend.Atomically(ctx, func(st Store[M, A]) error {
		order, err := c.load(ctx, st, owner)
		if err != nil {
			return err
		}
		target, ok := order.Get(id)
		if !ok {
			return nil
		}
		pred, hasPred := order.Predecessor(id)

		next := target.ChainNext()
		if hasPred {
			// Clear the target's link first so the successor is never
			// referenced twice.
			if next != nil {
				if err := st.SetNext(ctx, id, nil); err != nil {
					return fmt.Errorf("unlinking %s %d: %w", c.kind, id, err)
				}
			}
			if err := st.SetNext(ctx, pred.ChainID(), next); err != nil {
				return fmt.Errorf("relinking %s %d: %w", c.kind, pred.ChainID(), err)
			}
		}

		deleted, err = st.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting %s %d: %w", c.kind, id, err)
		}
		return nil
	})
	if err != nil {
		c.observe("delete", err)
		return false, err
	}
	if deleted {
		c.observe("delete", nil)
		c.logger.Debug("member deleted", "owner", owner, "id", id)
	}
	return deleted, nil
}

func (c *Chain[M, A]) insertFirst(ctx context.Context, st Store[M, A], order *Order[M], attrs A) (M, error) {
	var next *int64
	if head, ok := order.First(); ok {
		id := head.ChainID()
		next = &id
	}
	m, err := st.Create(ctx, order.Owner(), attrs, next)
	if err != nil {
		return m, fmt.Errorf("creating %s: %w", c.kind, err)
	}
	return m, nil
}

func (c *Chain[M, A]) insertAfter(ctx context.Context, st Store[M, A], pred M, attrs A) (M, error) {
	var zero M

	m, err := st.Create(ctx, pred.ChainOwner(), attrs, nil)
	if err != nil {
		return zero, fmt.Errorf("creating %s: %w", c.kind, err)
	}

	formerNext := pred.ChainNext()
	newID := m.ChainID()
	if err := st.SetNext(ctx, pred.ChainID(), &newID); err != nil {
		return zero, fmt.Errorf("linking %s %d: %w", c.kind, pred.ChainID(), err)
	}
	if formerNext != nil {
		if err := st.SetNext(ctx, newID, formerNext); err != nil {
			return zero, fmt.Errorf("linking %s %d: %w", c.kind, newID, err)
		}
	}

	return st.Get(ctx, newID)
}

// load lists and materializes owner's chain, reporting corruption.
func (c *Chain[M, A]) load(ctx context.Context, st Store[M, A], owner int64) (*Order[M], error) {
	members, err := st.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing %s members of %d: %w", c.kind, owner, err)
	}
	order, err := Materialize(owner, members)
	if err != nil {
		c.logger.Error("data integrity defect", "owner", owner, "error", err)
		if c.metrics != nil {
			c.metrics.ChainCorruptions.WithLabelValues(c.kind).Inc()
		}
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.ChainLength.WithLabelValues(c.kind).Observe(float64(order.Len()))
	}
	return order, nil
}

func (c *Chain[M, A]) ownerOf(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := c.backend.Atomically(ctx, func(st Store[M, A]) error {
		m, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		owner = m.ChainOwner()
		return nil
	})
	return owner, err
}

func (c *Chain[M, A]) observe(op string, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	case errors.Is(err, domain.ErrConflict):
		result = "conflict"
	case errors.Is(err, domain.ErrChainCorrupt):
		result = "corrupt"
	default:
		result = "error"
	}
	c.metrics.ChainMutations.WithLabelValues(c.kind, op, result).Inc()
}

func (c *Chain[M, A]) guardOutcome(outcome GuardOutcome, err error) {
	if c.metrics == nil || errors.Is(err, domain.ErrNotFound) {
		return
	}
	c.metrics.GuardOutcomes.WithLabelValues(c.kind, string(outcome)).Inc()
}
