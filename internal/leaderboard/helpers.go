package leaderboard

import (
	"errors"
	"time"

	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// ErrUnknownBoard is returned for board names the store does not hold.
var ErrUnknownBoard = errors.New("unknown leaderboard")

func toWSEntries(entries []Entry, firstRank int) []ws.LeaderboardEntry {
	result := make([]ws.LeaderboardEntry, len(entries))
	for i, e := range entries {
		result[i] = ws.LeaderboardEntry{
			Rank:       firstRank + i,
			PlayerID:   e.PlayerID,
			Username:   e.Username,
			Score:      e.Score,
			AchievedAt: e.AchievedAt.UTC().Format(time.RFC3339),
			Extra:      e.Extra,
		}
	}
	return result
}
