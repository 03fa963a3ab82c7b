package chain

import (
	"testing"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialize(t *testing.T) {
	tests := []struct {
		name    string
		members []*node
		want    []int64
		corrupt bool
	}{
		{
			name: "empty owner",
			want: []int64{},
		},
		{
			name:    "single member",
			members: []*node{{id: 1, owner: 1}},
			want:    []int64{1},
		},
		{
			name: "shuffled input",
			members: []*node{
				{id: 3, owner: 1},
				{id: 1, owner: 1, next: ptr(4)},
				{id: 4, owner: 1, next: ptr(2)},
				{id: 2, owner: 1, next: ptr(3)},
			},
			want: []int64{1, 4, 2, 3},
		},
		{
			name: "two heads",
			members: []*node{
				{id: 1, owner: 1},
				{id: 2, owner: 1},
			},
			corrupt: true,
		},
		{
			name: "cycle without head",
			members: []*node{
				{id: 1, owner: 1, next: ptr(2)},
				{id: 2, owner: 1, next: ptr(1)},
			},
			corrupt: true,
		},
		{
			name: "fork",
			members: []*node{
				{id: 1, owner: 1, next: ptr(3)},
				{id: 2, owner: 1, next: ptr(3)},
				{id: 3, owner: 1},
			},
			corrupt: true,
		},
		{
			name: "detached cycle",
			members: []*node{
				{id: 1, owner: 1},
				{id: 2, owner: 1, next: ptr(3)},
				{id: 3, owner: 1, next: ptr(2)},
			},
			corrupt: true,
		},
		{
			name: "dangling successor",
			members: []*node{
				{id: 1, owner: 1, next: ptr(9)},
			},
			corrupt: true,
		},
		{
			name: "foreign member",
			members: []*node{
				{id: 1, owner: 1, next: ptr(2)},
				{id: 2, owner: 2},
			},
			corrupt: true,
		},
		{
			name: "duplicate identity",
			members: []*node{
				{id: 1, owner: 1},
				{id: 1, owner: 1},
			},
			corrupt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := Materialize(1, tt.members)
			if tt.corrupt {
				require.ErrorIs(t, err, domain.ErrChainCorrupt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(order))
			assert.Equal(t, len(tt.members), order.Len())
		})
	}
}

func TestOrderAccessors(t *testing.T) {
	order, err := Materialize(1, []*node{
		{id: 2, owner: 1, next: ptr(3)},
		{id: 1, owner: 1, next: ptr(2)},
		{id: 3, owner: 1},
	})
	require.NoError(t, err)

	first, ok := order.First()
	require.True(t, ok)
	assert.EqualValues(t, 1, first.ChainID())

	assert.Equal(t, 2, order.indexOf(3))
	assert.Equal(t, -1, order.indexOf(42))

	pred, ok := order.Predecessor(3)
	require.True(t, ok)
	assert.EqualValues(t, 2, pred.ChainID())

	_, ok = order.Predecessor(1)
	assert.False(t, ok)

	members := order.Members()
	members[0] = nil
	again, _ := order.First()
	assert.NotNil(t, again, "Members must return a copy")
}

func ids[M Member](o *Order[M]) []int64 {
	out := make([]int64, 0, o.Len())
	for _, m := range o.Members() {
		out = append(out, m.ChainID())
	}
	return out
}
