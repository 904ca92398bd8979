package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/leaderboard"
	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text string
		name string
		args []string
	}{
		{"/queue math moderate 2", "queue", []string{"math", "moderate", "2"}},
		{`/tournament create "Friday Cup" bracket 8`, "tournament", []string{"create", "Friday Cup", "bracket", "8"}},
		{"  /TOP   weekly ", "top", []string{"weekly"}},
		{"/leave", "leave", nil},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			cmd, err := parseCommand(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.name, cmd.name)
			assert.Equal(t, tc.args, cmd.args)
		})
	}

	for _, bad := range []string{"hello there", "/", ""} {
		_, err := parseCommand(bad)
		assert.ErrorIs(t, err, errBadCommand, bad)
	}
}

func TestQueueCommandFormsMatch(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.command(t, "a", "/queue quiz moderate 2")
	he.command(t, "b", "/queue quiz moderate 2")

	lobby := decodeLast[ws.RaceLobbyPayload](t, he.rec, "b", ws.TypeRaceLobby)
	assert.Equal(t, "moderate", lobby.Difficulty)
	cur, ok := he.registry.Current("a")
	require.True(t, ok)
	assert.Equal(t, activity.KindQuickMatch, cur.Kind)

	he.command(t, "c", "/queue quiz moderate two")
	assert.Equal(t, httperrors.ErrCodeInvalidRequest, he.lastError(t, "c").Code)
	he.command(t, "c", "/queue")
	assert.Contains(t, he.lastError(t, "c").Message, "usage /queue")
}

func TestTournamentCommands(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.command(t, "host", `/tournament create "Friday Cup" bracket 8 quiz`)

	id, ok := he.tournaments.TournamentOf("host")
	require.True(t, ok)
	view, ok := he.tournaments.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Friday Cup", view.Name)
	assert.Equal(t, 8, view.MaxParticipants)
	assert.Equal(t, 4, view.MinParticipants)

	he.command(t, "p2", "/tournament join "+id)
	he.command(t, "host", "/tournament start")
	assert.Equal(t, httperrors.ErrCodeTournamentState, he.lastError(t, "host").Code)

	he.command(t, "p2", "/tournament leave")
	assert.False(t, he.registry.Busy("p2"))
	he.command(t, "p2", "/tournament leave")
	assert.Equal(t, httperrors.ErrCodeNotInMatch, he.lastError(t, "p2").Code)

	he.command(t, "host", "/tournament dance")
	assert.Equal(t, httperrors.ErrCodeUnknownCommand, he.lastError(t, "host").Code)
}

func TestChallengeAndLeaveCommands(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.command(t, "a", "/challenge b quiz hard")
	invite := decodeLast[ws.TournamentUpdatePayload](t, he.rec, "b", ws.TypeTournamentUpdate)

	he.command(t, "b", "/decline "+invite.TournamentID)
	assert.False(t, he.registry.Busy("a"))

	he.command(t, "a", "/leave")
	assert.Equal(t, httperrors.ErrCodeInvalidRequest, he.lastError(t, "a").Code)

	he.send(t, "a", ws.TypeStartGame, ws.StartGamePayload{Subject: "quiz"})
	he.command(t, "a", "/leave")
	assert.False(t, he.registry.Busy("a"))
}

func TestTopAndUnknownCommands(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.board.Submit(leaderboard.BoardWeekly, "p9", "Nine", 50, he.clock.Now(), nil)

	he.command(t, "p1", "/top weekly 5")
	data := decodeLast[ws.LeaderboardDataPayload](t, he.rec, "p1", ws.TypeLeaderboardData)
	assert.Equal(t, leaderboard.BoardWeekly, data.Board)
	require.Len(t, data.Entries, 1)
	assert.Equal(t, "p9", data.Entries[0].PlayerID)

	he.command(t, "p1", "/top")
	data = decodeLast[ws.LeaderboardDataPayload](t, he.rec, "p1", ws.TypeLeaderboardData)
	assert.Equal(t, leaderboard.BoardAllTime, data.Board)

	he.command(t, "p1", "/dance")
	assert.Equal(t, httperrors.ErrCodeUnknownCommand, he.lastError(t, "p1").Code)

	he.command(t, "p1", "just chatting")
	assert.Equal(t, httperrors.ErrCodeInvalidRequest, he.lastError(t, "p1").Code)
}
