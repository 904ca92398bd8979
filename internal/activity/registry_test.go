package activity

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimIsExclusive(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	queue := Activity{Kind: KindQueue, ID: "math|beginner|2"}
	tourney := Activity{Kind: KindTournament, ID: "t-1"}

	require.NoError(t, reg.Claim("p1", queue))
	assert.NoError(t, reg.Claim("p1", queue), "re-claiming the same activity is fine")
	assert.ErrorIs(t, reg.Claim("p1", tourney), ErrBusy)

	held, ok := reg.Current("p1")
	assert.True(t, ok)
	assert.Equal(t, queue, held)
	assert.Equal(t, 1, reg.Count(KindQueue))
}

func TestReleaseIgnoresStaleClaims(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	queue := Activity{Kind: KindQueue, ID: "math|beginner|2"}
	match := Activity{Kind: KindQuickMatch, ID: "m-1"}

	require.NoError(t, reg.Claim("p1", queue))
	require.NoError(t, reg.Transfer("p1", queue, match))

	assert.False(t, reg.Release("p1", queue), "queue claim was already transferred")
	assert.True(t, reg.Busy("p1"))
	assert.True(t, reg.Release("p1", match))
	assert.False(t, reg.Busy("p1"))
}

func TestTransferRequiresCurrentClaim(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	from := Activity{Kind: KindQueue, ID: "a"}
	to := Activity{Kind: KindQuickMatch, ID: "b"}

	assert.ErrorIs(t, reg.Transfer("p1", from, to), ErrNotHeld)
}
