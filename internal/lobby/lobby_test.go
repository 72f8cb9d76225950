package lobby

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// helper: a two-seat public lobby hosted by player 1
func newDen(t *testing.T) *Lobby {
	t.Helper()
	return New("BCDFG", "Den", 2, Public, 12940, Player{ID: 1, Nickname: "Al"}, t0)
}

func TestValidateSize(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		wantErr error
	}{
		{name: "zero", size: 0, wantErr: ErrInvalidSize},
		{name: "negative", size: -3, wantErr: ErrInvalidSize},
		{name: "solo", size: 1},
		{name: "cap", size: MaxPlayers},
		{name: "above cap", size: MaxPlayers + 1, wantErr: ErrSizeTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSize(tc.size)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNew_CreatorIsFirstAndReady(t *testing.T) {
	l := newDen(t)

	roster := l.Roster()
	require.Len(t, roster, 1)
	assert.Equal(t, Player{ID: 1, Nickname: "Al", Ready: true, Ordinal: 1, LastUpdate: t0}, roster[0])
	assert.False(t, l.Started)
}

func TestJoin_AppendsInOrderDefaultReady(t *testing.T) {
	l := newDen(t)

	p, err := l.Join(2, "Bo", t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Ordinal)
	assert.True(t, p.Ready)

	assert.Equal(t, []int{1, 2}, l.IDs())
}

func TestJoin_Rejections(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		l := newDen(t)
		_, err := l.Join(2, "Bo", t0)
		require.NoError(t, err)

		_, err = l.Join(3, "Cy", t0)
		require.ErrorIs(t, err, ErrFull)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("already joined", func(t *testing.T) {
		l := newDen(t)
		_, err := l.Join(1, "Al again", t0)
		require.ErrorIs(t, err, ErrAlreadyJoined)
		assert.Equal(t, 1, l.Len())
	})
}

func TestRemove_NoRenumberingAndOrdinalsNotReused(t *testing.T) {
	l := New("BCDFG", "Den", 4, Private, 12940, Player{ID: 1, Nickname: "Al"}, t0)
	_, _ = l.Join(2, "Bo", t0)
	_, _ = l.Join(3, "Cy", t0)

	require.True(t, l.Remove(2))
	require.False(t, l.Remove(2))

	roster := l.Roster()
	require.Len(t, roster, 2)
	assert.Equal(t, 1, roster[0].Ordinal)
	assert.Equal(t, 3, roster[1].Ordinal)

	p, err := l.Join(4, "Di", t0)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Ordinal, "ordinal 3 is still held; a freed slot must not hand out a duplicate")
}

func TestRemove_LastPlayerEmptiesLobby(t *testing.T) {
	l := newDen(t)
	require.True(t, l.Remove(1))
	assert.True(t, l.Empty())
}

func TestSetReady_AndAllReady(t *testing.T) {
	l := newDen(t)
	_, _ = l.Join(2, "Bo", t0)
	require.True(t, l.AllReady())

	later := t0.Add(time.Minute)
	require.NoError(t, l.SetReady(2, false, later))
	assert.False(t, l.AllReady())
	assert.Equal(t, later, l.Roster()[1].LastUpdate)

	require.NoError(t, l.SetReady(2, true, later))
	assert.True(t, l.AllReady())

	require.ErrorIs(t, l.SetReady(9, true, later), ErrPlayerNotFound)
}

func TestRoster_IsACopy(t *testing.T) {
	l := newDen(t)
	r := l.Roster()
	r[0].Ready = false
	assert.True(t, l.AllReady())
}

func TestSummary(t *testing.T) {
	l := newDen(t)
	assert.Equal(t, Summary{Code: "BCDFG", Name: "Den", Players: 1, MaxPlayers: 2}, l.Summary())
	assert.Equal(t, "public", l.Visibility.String())
	assert.Equal(t, "private", Private.String())
}
