package chain

import (
	"testing"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// [B:x, C:y, A:z]
func guardOrder(t *testing.T) *Order[*node] {
	t.Helper()
	order, err := Materialize(1, []*node{
		{id: 1, owner: 1, name: "A", tag: "z"},
		{id: 2, owner: 1, next: ptr(3), name: "B", tag: "x"},
		{id: 3, owner: 1, next: ptr(1), name: "C", tag: "y"},
	})
	require.NoError(t, err)
	return order
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		at      Placement
		attrs   nodeAttrs
		want    GuardOutcome
		wantID  int64
		wantErr error
	}{
		{"absent at head", Head(), nodeAttrs{name: "D"}, GuardAbsent, 0, nil},
		{"absent after member", After(3), nodeAttrs{name: "D"}, GuardAbsent, 0, nil},
		{"identical at head", Head(), nodeAttrs{name: "B", tag: "x"}, GuardExisting, 2, nil},
		{"identical after predecessor", After(2), nodeAttrs{name: "C", tag: "y"}, GuardExisting, 3, nil},
		{"identical at tail", After(3), nodeAttrs{name: "A", tag: "z"}, GuardExisting, 1, nil},
		{"equivalent but not at head", Head(), nodeAttrs{name: "A", tag: "z"}, GuardConflict, 0, domain.ErrConflict},
		{"equivalent elsewhere", After(1), nodeAttrs{name: "C", tag: "y"}, GuardConflict, 0, domain.ErrConflict},
		{"after itself", After(2), nodeAttrs{name: "B", tag: "x"}, GuardConflict, 0, domain.ErrConflict},
		{"differs at right position", Head(), nodeAttrs{name: "B", tag: "other"}, GuardConflict, 0, domain.ErrConflict},
		{"unknown predecessor", After(99), nodeAttrs{name: "D"}, GuardAbsent, 0, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome, err := Check[*node](guardOrder(t), tt.at, tt.attrs)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.want, outcome)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			if tt.want == GuardExisting {
				assert.Equal(t, tt.wantID, got.ChainID())
			}
		})
	}
}

func TestCheckEmptyOwner(t *testing.T) {
	order, err := Materialize[*node](1, nil)
	require.NoError(t, err)

	_, outcome, err := Check[*node](order, Head(), nodeAttrs{name: "A"})
	require.NoError(t, err)
	assert.Equal(t, GuardAbsent, outcome)
}

func TestPlacementString(t *testing.T) {
	assert.Equal(t, "head", Head().String())
	assert.Equal(t, "after 7", After(7).String())
	assert.Equal(t, "head", AfterPtr(nil).String())
	assert.Equal(t, "after 3", AfterPtr(ptr(3)).String())
}
