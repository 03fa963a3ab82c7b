package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

type node struct {
	id    int64
	owner int64
	next  *int64
	name  string
	tag   string
}

func (n *node) ChainID() int64    { return n.id }
func (n *node) ChainOwner() int64 { return n.owner }
func (n *node) ChainNext() *int64 { return n.next }

type nodeAttrs struct {
	name string
	tag  string
}

func (a nodeAttrs) Matches(n *node) bool   { return n.name == a.name }
func (a nodeAttrs) Identical(n *node) bool { return a.Matches(n) && n.tag == a.tag }

var errInjected = errors.New("injected failure")

// fakeBackend is a copy-on-begin transactional store. Like the SQL schema it
// refuses two members pointing at the same successor.
type fakeBackend struct {
	mu     sync.Mutex
	nodes  map[int64]node
	nextID int64

	// failSetNextAt makes the n-th SetNext call (counted across all
	// transactions, 1-based) fail. Zero disables it.
	failSetNextAt int
	setNextCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nodes: make(map[int64]node)}
}

func (b *fakeBackend) Atomically(ctx context.Context, fn func(Store[*node, nodeAttrs]) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &fakeTx{b: b, nodes: make(map[int64]node, len(b.nodes)), nextID: b.nextID}
	for id, n := range b.nodes {
		tx.nodes[id] = n
	}
	if err := fn(tx); err != nil {
		return err
	}
	b.nodes = tx.nodes
	b.nextID = tx.nextID
	return nil
}

func (b *fakeBackend) count(owner int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, nd := range b.nodes {
		if nd.owner == owner {
			n++
		}
	}
	return n
}

// put writes a raw row, bypassing chain logic, to simulate out-of-band edits.
func (b *fakeBackend) put(n node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[n.id] = n
	if n.id > b.nextID {
		b.nextID = n.id
	}
}

type fakeTx struct {
	b      *fakeBackend
	nodes  map[int64]node
	nextID int64
}

func (t *fakeTx) checkNext(self int64, next *int64) error {
	if next == nil {
		return nil
	}
	for id, n := range t.nodes {
		if id != self && n.next != nil && *n.next == *next {
			return fmt.Errorf("unique violation: %d already precedes %d", id, *next)
		}
	}
	return nil
}

func (t *fakeTx) Create(ctx context.Context, owner int64, attrs nodeAttrs, next *int64) (*node, error) {
	if err := t.checkNext(0, next); err != nil {
		return nil, err
	}
	t.nextID++
	n := node{id: t.nextID, owner: owner, next: copyID(next), name: attrs.name, tag: attrs.tag}
	t.nodes[n.id] = n
	return &n, nil
}

func (t *fakeTx) Get(ctx context.Context, id int64) (*node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, domain.ErrNotFound)
	}
	return &n, nil
}

func (t *fakeTx) ListByOwner(ctx context.Context, owner int64) ([]*node, error) {
	var out []*node
	for _, n := range t.nodes {
		if n.owner == owner {
			n := n
			out = append(out, &n)
		}
	}
	// Map order is random already; sort descending so the result never
	// happens to match chain order.
	sort.Slice(out, func(i, j int) bool { return out[i].id > out[j].id })
	return out, nil
}

func (t *fakeTx) SetNext(ctx context.Context, id int64, next *int64) error {
	t.b.setNextCalls++
	if t.b.failSetNextAt != 0 && t.b.setNextCalls == t.b.failSetNextAt {
		return errInjected
	}
	n, ok := t.nodes[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := t.checkNext(id, next); err != nil {
		return err
	}
	n.next = copyID(next)
	t.nodes[id] = n
	return nil
}

func (t *fakeTx) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := t.nodes[id]; !ok {
		return false, nil
	}
	delete(t.nodes, id)
	return true, nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func ptr(id int64) *int64 { return &id }
