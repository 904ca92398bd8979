package tournament

import (
	"fmt"
	"math/rand"
	"time"
)

// Tie-break policy names accepted by TieBreakerByName.
const (
	PolicyCoinFlip       = "coin_flip"
	PolicyFasterResponse = "faster_response"
)

// Contender is one of the players tied on score when a match ends.
type Contender struct {
	PlayerID    string
	Score       int
	Correct     int
	AvgResponse time.Duration
}

// TieBreaker picks the winner among contenders tied on score. It is called
// with at least two contenders, in match seating order.
type TieBreaker func(tied []Contender) string

// Shuffle reorders participant IDs in place before the bracket is drawn.
type Shuffle func(ids []string)

// CoinFlip picks uniformly at random. A nil rnd uses the global source.
func CoinFlip(rnd *rand.Rand) TieBreaker {
	return coinFlip(&lockedRand{rnd: rnd})
}

func coinFlip(src *lockedRand) TieBreaker {
	return func(tied []Contender) string {
		return tied[src.Intn(len(tied))].PlayerID
	}
}

// FasterAverageResponse picks the contender with the lowest average response
// time, deferring to fallback when that is tied too.
func FasterAverageResponse(fallback TieBreaker) TieBreaker {
	return func(tied []Contender) string {
		best := []Contender{tied[0]}
		for _, c := range tied[1:] {
			switch {
			case c.AvgResponse < best[0].AvgResponse:
				best = []Contender{c}
			case c.AvgResponse == best[0].AvgResponse:
				best = append(best, c)
			}
		}
		if len(best) == 1 || fallback == nil {
			return best[0].PlayerID
		}
		return fallback(best)
	}
}

// First always picks the first contender. Tests use it to pin outcomes.
func First(tied []Contender) string {
	return tied[0].PlayerID
}

// TieBreakerByName resolves a configured policy name.
func TieBreakerByName(name string, rnd *rand.Rand) (TieBreaker, error) {
	switch name {
	case "", PolicyCoinFlip:
		return CoinFlip(rnd), nil
	case PolicyFasterResponse:
		return FasterAverageResponse(CoinFlip(rnd)), nil
	default:
		return nil, fmt.Errorf("unknown tie-break policy %q", name)
	}
}

// RandomShuffle shuffles with rnd, or the global source when nil.
func RandomShuffle(rnd *rand.Rand) Shuffle {
	return randomShuffle(&lockedRand{rnd: rnd})
}

func randomShuffle(src *lockedRand) Shuffle {
	return func(ids []string) {
		for i := len(ids) - 1; i > 0; i-- {
			j := src.Intn(i + 1)
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
}
