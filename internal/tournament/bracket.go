package tournament

import "time"

// newMatch creates a pending match for players (which may still be empty).
func newMatch(id string, round int, players []string, questions int) *Match {
	m := &Match{
		ID:             id,
		Round:          round,
		Players:        players,
		Status:         MatchPending,
		Scores:         make(map[string]int, len(players)),
		TotalQuestions: questions,
	}
	m.seat(players)
	return m
}

// seat fills the match with players, turning a single player into a bye.
func (m *Match) seat(players []string) {
	m.Players = players
	m.correct = make(map[string]int, len(players))
	m.streak = make(map[string]int, len(players))
	m.response = make(map[string]time.Duration, len(players))
	m.answers = make(map[string]int, len(players))
	for _, id := range players {
		m.Scores[id] = 0
	}
	if len(players) == 1 {
		m.Bye = true
		m.Status = MatchCompleted
		m.WinnerID = players[0]
	}
}

// buildBracket draws round one from ids and pre-allocates every later round
// with empty slots, ceil(n/2) matches per round until one match remains.
func buildBracket(ids []string, questions int, newID func() string) []*Round {
	var rounds []*Round

	first := &Round{Number: 1, Status: MatchPending}
	for i := 0; i < len(ids); i += 2 {
		end := min(i+2, len(ids))
		first.Matches = append(first.Matches, newMatch(newID(), 1, append([]string(nil), ids[i:end]...), questions))
	}
	rounds = append(rounds, first)

	for remaining := len(first.Matches); remaining > 1; {
		n := (remaining + 1) / 2
		r := &Round{Number: len(rounds) + 1, Status: MatchPending}
		for i := 0; i < n; i++ {
			r.Matches = append(r.Matches, newMatch(newID(), r.Number, nil, questions))
		}
		rounds = append(rounds, r)
		remaining = n
	}
	return rounds
}

// advanceBracket seats winners of a completed round into the next one:
// winners[2i] meets winners[2i+1], an unpaired winner gets a bye.
func advanceBracket(done, next *Round) {
	winners := make([]string, 0, len(done.Matches))
	for _, m := range done.Matches {
		winners = append(winners, m.WinnerID)
	}
	for i, m := range next.Matches {
		lo := 2 * i
		if lo >= len(winners) {
			break
		}
		hi := min(lo+2, len(winners))
		m.seat(append([]string(nil), winners[lo:hi]...))
	}
}

// buildLeague schedules a round robin with the circle method: every pair
// meets exactly once. With an odd count one player sits out each round.
func buildLeague(ids []string, questions int, newID func() string) []*Round {
	seats := append([]string(nil), ids...)
	if len(seats)%2 == 1 {
		seats = append(seats, "")
	}
	n := len(seats)

	rounds := make([]*Round, 0, n-1)
	for r := 0; r < n-1; r++ {
		round := &Round{Number: r + 1, Status: MatchPending}
		for i := 0; i < n/2; i++ {
			a, b := seats[i], seats[n-1-i]
			if a == "" || b == "" {
				continue
			}
			round.Matches = append(round.Matches, newMatch(newID(), round.Number, []string{a, b}, questions))
		}
		rounds = append(rounds, round)

		rotated := make([]string, 0, n)
		rotated = append(rotated, seats[0], seats[n-1])
		rotated = append(rotated, seats[1:n-1]...)
		seats = rotated
	}
	return rounds
}

// buildSingle puts every participant into one match.
func buildSingle(ids []string, questions int, newID func() string) []*Round {
	return []*Round{{
		Number:  1,
		Status:  MatchPending,
		Matches: []*Match{newMatch(newID(), 1, append([]string(nil), ids...), questions)},
	}}
}
