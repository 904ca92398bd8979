package profile

// Achievement is a one-time unlock shown to the player.
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Achievement IDs.
const (
	AchievementFirstGame          = "first_game"
	AchievementStreak5            = "first_correct_streak_5"
	AchievementStreak10           = "streak_10"
	AchievementPerfectGame        = "perfect_game"
	AchievementScore5000          = "score_5000"
	AchievementGames50            = "games_50"
	AchievementTournamentChampion = "tournament_champion"
	AchievementTournamentFinalist = "tournament_finalist"
)

type rule struct {
	Achievement
	unlocked func(p *Profile) bool
}

var rules = []rule{
	{
		Achievement: Achievement{AchievementFirstGame, "First Fall", "Finish your first game."},
		unlocked:    func(p *Profile) bool { return p.Stats.GamesPlayed >= 1 },
	},
	{
		Achievement: Achievement{AchievementStreak5, "On Fire", "Answer 5 questions in a row correctly."},
		unlocked:    func(p *Profile) bool { return p.Stats.BestStreak >= 5 },
	},
	{
		Achievement: Achievement{AchievementStreak10, "Unstoppable", "Answer 10 questions in a row correctly."},
		unlocked:    func(p *Profile) bool { return p.Stats.BestStreak >= 10 },
	},
	{
		Achievement: Achievement{AchievementPerfectGame, "Flawless", "Finish a game without a wrong answer."},
		unlocked:    func(p *Profile) bool { return p.Stats.PerfectGames >= 1 },
	},
	{
		Achievement: Achievement{AchievementScore5000, "High Scorer", "Score 5000 points in one game."},
		unlocked:    func(p *Profile) bool { return p.Stats.BestScore >= 5000 },
	},
	{
		Achievement: Achievement{AchievementGames50, "Regular", "Finish 50 games."},
		unlocked:    func(p *Profile) bool { return p.Stats.GamesPlayed >= 50 },
	},
	{
		Achievement: Achievement{AchievementTournamentChampion, "Champion", "Win a tournament."},
		unlocked:    func(p *Profile) bool { return p.Tournaments.Won >= 1 },
	},
	{
		Achievement: Achievement{AchievementTournamentFinalist, "Finalist", "Reach a tournament final."},
		unlocked:    func(p *Profile) bool { return p.Tournaments.Won+p.Tournaments.RunnerUp >= 1 },
	},
}

// Lookup returns the definition of an achievement.
func Lookup(id string) (Achievement, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r.Achievement, true
		}
	}
	return Achievement{}, false
}
