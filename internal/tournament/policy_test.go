package tournament

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFasterAverageResponse(t *testing.T) {
	tied := []Contender{
		{PlayerID: "a", Score: 300, AvgResponse: 4 * time.Second},
		{PlayerID: "b", Score: 300, AvgResponse: 2 * time.Second},
		{PlayerID: "c", Score: 300, AvgResponse: 3 * time.Second},
	}
	assert.Equal(t, "b", FasterAverageResponse(nil)(tied))

	var got []Contender
	fallback := func(c []Contender) string {
		got = c
		return c[len(c)-1].PlayerID
	}
	tied[2].AvgResponse = 2 * time.Second
	assert.Equal(t, "c", FasterAverageResponse(fallback)(tied))
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].PlayerID)
}

func TestCoinFlipPicksAContender(t *testing.T) {
	flip := CoinFlip(rand.New(rand.NewSource(11)))
	tied := []Contender{{PlayerID: "a"}, {PlayerID: "b"}}
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		seen[flip(tied)]++
	}
	assert.Len(t, seen, 2, "both sides should win some flips")
	assert.Equal(t, 200, seen["a"]+seen["b"])
}

func TestTieBreakerByName(t *testing.T) {
	for _, name := range []string{"", PolicyCoinFlip, PolicyFasterResponse} {
		tb, err := TieBreakerByName(name, rand.New(rand.NewSource(1)))
		require.NoError(t, err, name)
		assert.NotNil(t, tb)
	}

	tb, err := TieBreakerByName(PolicyFasterResponse, nil)
	require.NoError(t, err)
	assert.Equal(t, "y", tb([]Contender{
		{PlayerID: "x", AvgResponse: time.Second},
		{PlayerID: "y", AvgResponse: time.Millisecond},
	}))

	_, err = TieBreakerByName("sudden_death", nil)
	assert.Error(t, err)
}

func TestRandomShuffleKeepsMembers(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	shuffled := append([]string(nil), ids...)
	RandomShuffle(rand.New(rand.NewSource(5)))(shuffled)
	assert.ElementsMatch(t, ids, shuffled)
}

func TestFirst(t *testing.T) {
	assert.Equal(t, "a", First([]Contender{{PlayerID: "a"}, {PlayerID: "b"}}))
}
