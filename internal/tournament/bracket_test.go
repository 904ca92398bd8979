package tournament

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func players(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i+1)
	}
	return ids
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"bracket of eight", Config{Name: "Cup", Type: TypeBracket, MaxParticipants: 8}, false},
		{"bracket odd size", Config{Name: "Cup", Type: TypeBracket, MaxParticipants: 6}, true},
		{"bracket min below four", Config{Name: "Cup", Type: TypeBracket, MinParticipants: 2, MaxParticipants: 8}, true},
		{"league of four", Config{Name: "League", Type: TypeLeague, MaxParticipants: 6}, false},
		{"league of three", Config{Name: "League", Type: TypeLeague, MinParticipants: 3, MaxParticipants: 6}, true},
		{"quick match of four", Config{Name: "Quick", Type: TypeQuickMatch, MaxParticipants: 4}, false},
		{"quick match of five", Config{Name: "Quick", Type: TypeQuickMatch, MaxParticipants: 5}, true},
		{"challenge forced to two", Config{Name: "Duel", Type: TypeChallenge, MaxParticipants: 8}, false},
		{"short name", Config{Name: "ab", Type: TypeQuickMatch, MaxParticipants: 2}, true},
		{"max below min", Config{Name: "Cup", Type: TypeQuickMatch, MinParticipants: 3, MaxParticipants: 2}, true},
		{"unknown type", Config{Name: "Cup", Type: "swiss", MaxParticipants: 8}, true},
		{"too many questions", Config{Name: "Cup", Type: TypeQuickMatch, MaxParticipants: 2, QuestionsPerMatch: 51}, true},
		{"rewards need official", Config{Name: "Cup", Type: TypeBracket, MaxParticipants: 4,
			Rewards: []Reward{{Placement: 1, Kind: "coins", Amount: 10}}}, true},
		{"official rewards", Config{Name: "Cup", Type: TypeBracket, MaxParticipants: 4, IsOfficial: true,
			Rewards: []Reward{{Placement: 1, Kind: "coins", Amount: 10}, {Placement: 2, Kind: "badge", Amount: 1}}}, false},
		{"reward for third place", Config{Name: "Cup", Type: TypeBracket, MaxParticipants: 4, IsOfficial: true,
			Rewards: []Reward{{Placement: 3, Kind: "coins", Amount: 10}}}, true},
		{"reward without amount", Config{Name: "Cup", Type: TypeBracket, MaxParticipants: 4, IsOfficial: true,
			Rewards: []Reward{{Placement: 1, Kind: "coins"}}}, true},
		{"custom invite code", Config{Name: "Cup", Type: TypeQuickMatch, MaxParticipants: 2, IsPrivate: true, InviteCode: " abc234 "}, false},
		{"invite code with ambiguous letters", Config{Name: "Cup", Type: TypeQuickMatch, MaxParticipants: 2, IsPrivate: true, InviteCode: "ABC10O"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Normalize(5)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{Name: "  Cup  ", Type: " Bracket ", Difficulty: "HARD", InviteCode: "abc234"}
	cfg.Normalize(7)

	assert.Equal(t, "Cup", cfg.Name)
	assert.Equal(t, TypeBracket, cfg.Type)
	assert.Equal(t, "math", cfg.Subject)
	assert.Equal(t, "hard", cfg.Difficulty)
	assert.Equal(t, 7, cfg.QuestionsPerMatch)
	assert.Equal(t, 4, cfg.MinParticipants)
	assert.Equal(t, "ABC234", cfg.InviteCode)

	challenge := Config{Type: TypeChallenge, MinParticipants: 3, MaxParticipants: 9}
	challenge.Normalize(0)
	assert.Equal(t, 2, challenge.MinParticipants)
	assert.Equal(t, 2, challenge.MaxParticipants)
	assert.Equal(t, defaultQuestions, challenge.QuestionsPerMatch)
}

func TestInviteCodes(t *testing.T) {
	rnd := &lockedRand{rnd: rand.New(rand.NewSource(3))}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code := generateInviteCode(rnd, func(c string) bool { return seen[c] })
		require.True(t, validInviteCode(code), code)
		require.False(t, seen[code])
		seen[code] = true
	}

	assert.False(t, validInviteCode("ABCDE"))
	assert.False(t, validInviteCode("ABCDEI"))
	assert.False(t, validInviteCode("abcdef"))
	assert.True(t, codesMatch("ABC234", " abc234"))
	assert.False(t, codesMatch("", ""))
}

func TestBuildBracketSizes(t *testing.T) {
	tests := []struct {
		players int
		rounds  []int
	}{
		{4, []int{2, 1}},
		{5, []int{3, 2, 1}},
		{6, []int{3, 2, 1}},
		{8, []int{4, 2, 1}},
		{9, []int{5, 3, 2, 1}},
		{32, []int{16, 8, 4, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.players), func(t *testing.T) {
			rounds := buildBracket(players(tt.players), 3, sequentialIDs())
			require.Len(t, rounds, len(tt.rounds))
			for i, r := range rounds {
				assert.Equal(t, i+1, r.Number)
				assert.Len(t, r.Matches, tt.rounds[i], "round %d", r.Number)
			}
			for _, m := range rounds[len(rounds)-1].Matches {
				assert.Empty(t, m.Players)
				assert.Equal(t, MatchPending, m.Status)
			}
		})
	}
}

func TestBracketByeAndAdvance(t *testing.T) {
	rounds := buildBracket(players(5), 3, sequentialIDs())
	first := rounds[0]

	bye := first.Matches[2]
	assert.True(t, bye.Bye)
	assert.Equal(t, MatchCompleted, bye.Status)
	assert.Equal(t, "p05", bye.WinnerID)
	assert.False(t, first.Matches[0].Bye)

	first.Matches[0].WinnerID = "p02"
	first.Matches[1].WinnerID = "p03"
	advanceBracket(first, rounds[1])

	assert.Equal(t, []string{"p02", "p03"}, rounds[1].Matches[0].Players)
	assert.Equal(t, MatchPending, rounds[1].Matches[0].Status)
	assert.Equal(t, []string{"p05"}, rounds[1].Matches[1].Players)
	assert.True(t, rounds[1].Matches[1].Bye)
	assert.Equal(t, "p05", rounds[1].Matches[1].WinnerID)
}

func TestBuildLeagueEveryPairOnce(t *testing.T) {
	for _, n := range []int{4, 5, 6, 7} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			ids := players(n)
			rounds := buildLeague(ids, 3, sequentialIDs())

			wantRounds := n - 1
			if n%2 == 1 {
				wantRounds = n
			}
			require.Len(t, rounds, wantRounds)

			pairs := map[string]int{}
			for _, r := range rounds {
				inRound := map[string]bool{}
				for _, m := range r.Matches {
					require.Len(t, m.Players, 2)
					a, b := m.Players[0], m.Players[1]
					assert.False(t, inRound[a] || inRound[b], "player twice in round %d", r.Number)
					inRound[a], inRound[b] = true, true
					if b < a {
						a, b = b, a
					}
					pairs[a+"-"+b]++
				}
			}
			assert.Len(t, pairs, n*(n-1)/2)
			for pair, count := range pairs {
				assert.Equal(t, 1, count, pair)
			}
		})
	}
}

func TestBuildSingle(t *testing.T) {
	rounds := buildSingle(players(3), 4, sequentialIDs())
	require.Len(t, rounds, 1)
	require.Len(t, rounds[0].Matches, 1)
	m := rounds[0].Matches[0]
	assert.Len(t, m.Players, 3)
	assert.Equal(t, 4, m.TotalQuestions)
	assert.Equal(t, map[string]int{"p01": 0, "p02": 0, "p03": 0}, m.Scores)
}
