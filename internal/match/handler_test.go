package match

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/leaderboard"
	"github.com/gokatarajesh/falling-trivia/internal/session"
	"github.com/gokatarajesh/falling-trivia/internal/tournament"
	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

type handlerEnv struct {
	*env
	h           *Handler
	tournaments *tournament.Orchestrator
	sessions    *session.Controller
	clients     map[string]*client
}

func newHandlerEnv(t *testing.T, mutate func(*HandlerDeps)) *handlerEnv {
	t.Helper()
	e := newEnv(t, 2)
	he := &handlerEnv{env: e, clients: make(map[string]*client)}
	he.sessions = session.NewController(e.registry, e.questions, zerolog.Nop(), session.Options{
		Scheduler:   e.clock,
		Sender:      e.rec,
		Leaderboard: e.board,
		Profiles:    e.profiles,
	})
	he.tournaments = tournament.NewOrchestrator(e.registry, e.questions, zerolog.Nop(), tournament.Options{
		Scheduler:  e.clock,
		Sender:     e.rec,
		TieBreaker: tournament.First,
		Shuffle:    func([]string) {},
	})
	deps := HandlerDeps{
		Sender:      e.rec,
		Registry:    e.registry,
		Queue:       e.queue,
		Matches:     e.matches,
		Tournaments: he.tournaments,
		Sessions:    he.sessions,
		Leaderboard: e.board,
	}
	if mutate != nil {
		mutate(&deps)
	}
	he.h = NewHandler(deps, zerolog.Nop())
	return he
}

// send delivers one inbound message from player, as the read pump would.
func (he *handlerEnv) send(t *testing.T, player, msgType string, payload interface{}) {
	t.Helper()
	c, ok := he.clients[player]
	if !ok {
		c = he.h.newClient(player, "user-"+player)
		he.clients[player] = c
	}
	msg := ws.Message{Type: msgType, RequestID: "r-" + msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = raw
	}
	require.NoError(t, he.h.handleMessage(context.Background(), c, msg))
}

func (he *handlerEnv) command(t *testing.T, player, text string) {
	t.Helper()
	he.send(t, player, ws.TypeChatCommand, ws.ChatCommandPayload{Text: text})
}

func (he *handlerEnv) lastError(t *testing.T, player string) ws.ErrorPayload {
	t.Helper()
	return decodeLast[ws.ErrorPayload](t, he.rec, player, ws.TypeError)
}

func TestPingEchoesRequestID(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "p1", ws.TypePing, nil)

	pong, ok := he.rec.Last("p1", ws.TypePong)
	require.True(t, ok)
	assert.Equal(t, "r-ping", pong.RequestID)
}

func TestUnknownMessageType(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "p1", "teleport", nil)

	msg, ok := he.rec.Last("p1", ws.TypeError)
	require.True(t, ok)
	assert.Equal(t, "r-teleport", msg.RequestID)
	assert.Equal(t, httperrors.ErrCodeUnknownMessageType, he.lastError(t, "p1").Code)
}

func TestQueueToQuickMatchOverWebSocket(t *testing.T) {
	he := newHandlerEnv(t, nil)
	join := ws.JoinQueuePayload{Subject: "quiz", Difficulty: "moderate"}
	he.send(t, "a", ws.TypeJoinQueue, join)

	queued := decodeLast[ws.QuickMatchUpdatePayload](t, he.rec, "a", ws.TypeQuickMatchUpdate)
	assert.Equal(t, "queued", queued.Status)
	assert.Equal(t, "quiz|moderate|2", queued.QueueKey)

	he.send(t, "a", ws.TypeJoinQueue, join)
	assert.Equal(t, httperrors.ErrCodeAlreadyExists, he.lastError(t, "a").Code)

	he.send(t, "b", ws.TypeJoinQueue, join)
	lobby := decodeLast[ws.RaceLobbyPayload](t, he.rec, "a", ws.TypeRaceLobby)
	assert.Len(t, lobby.Players, 2)

	he.send(t, "a", ws.TypeJoinQueue, join)
	assert.Equal(t, httperrors.ErrCodePlayerBusy, he.lastError(t, "a").Code)

	he.clock.Advance(5 * time.Second)
	he.send(t, "a", ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{Answer: "4"})
	score := decodeLast[ws.ScoreUpdatePayload](t, he.rec, "a", ws.TypeScoreUpdate)
	assert.Equal(t, lobby.MatchID, score.ContextID)

	he.send(t, "a", ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{Context: ContextQuickMatch, Answer: "4"})
	assert.Equal(t, httperrors.ErrCodeSubmitFailed, he.lastError(t, "a").Code)
}

func TestSoloSessionOverWebSocket(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "p1", ws.TypeStartGame, ws.StartGamePayload{Subject: "quiz", Difficulty: "beginner"})

	q := decodeLast[ws.QuestionPayload](t, he.rec, "p1", ws.TypeQuestion)
	assert.Equal(t, session.ContextSession, q.Context)

	he.send(t, "p1", ws.TypeAnswerBlockHit, ws.AnswerBlockHitPayload{AnswerValue: "4"})
	score := decodeLast[ws.ScoreUpdatePayload](t, he.rec, "p1", ws.TypeScoreUpdate)
	assert.Equal(t, 1, score.Streak)

	he.send(t, "p1", ws.TypeMissedBlocks, nil)
	assert.Equal(t, httperrors.ErrCodeSubmitFailed, he.lastError(t, "p1").Code)

	he.send(t, "p1", ws.TypeQuitGame, nil)
	assert.False(t, he.registry.Busy("p1"))

	he.send(t, "p1", ws.TypeQuitGame, nil)
	assert.Equal(t, httperrors.ErrCodeNoSession, he.lastError(t, "p1").Code)
}

func TestErrorCodes(t *testing.T) {
	he := newHandlerEnv(t, nil)

	cases := []struct {
		name    string
		msgType string
		payload interface{}
		code    string
	}{
		{"answer without activity", ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{Answer: "4"}, httperrors.ErrCodeNoSession},
		{"unknown answer context", ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{Context: "arcade", Answer: "4"}, httperrors.ErrCodeInvalidPayload},
		{"landed without session", ws.TypeLanded, nil, httperrors.ErrCodeNoSession},
		{"bad player count", ws.TypeJoinQueue, ws.JoinQueuePayload{Subject: "quiz", PlayerCount: 7}, httperrors.ErrCodeInvalidQueueEntry},
		{"unknown subject", ws.TypeStartGame, ws.StartGamePayload{Subject: "alchemy"}, httperrors.ErrCodeValidationFailed},
		{"unknown tournament", ws.TypeJoinTournament, ws.JoinTournamentPayload{TournamentID: "nope"}, httperrors.ErrCodeTournamentNotFound},
		{"bad tournament config", ws.TypeCreateTournament, ws.CreateTournamentPayload{Name: "x", Type: "bracket"}, httperrors.ErrCodeValidationFailed},
		{"unknown board", ws.TypeGetLeaderboard, ws.GetLeaderboardPayload{Board: "galaxy"}, httperrors.ErrCodeUnknownBoard},
		{"challenge self", ws.TypeChallengePlayer, ws.ChallengePlayerPayload{TargetID: "p1"}, httperrors.ErrCodeValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			he.send(t, "p1", tc.msgType, tc.payload)
			assert.Equal(t, tc.code, he.lastError(t, "p1").Code)
		})
	}

	raw := ws.Message{Type: ws.TypeJoinQueue, Payload: json.RawMessage(`{"player_count":"two"}`)}
	require.NoError(t, he.h.handleMessage(context.Background(), he.h.newClient("p2", "p2"), raw))
	assert.Equal(t, httperrors.ErrCodeInvalidPayload, he.lastError(t, "p2").Code)
}

func TestTournamentMessages(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "host", ws.TypeCreateTournament, ws.CreateTournamentPayload{
		Name:            "Lunch Cup",
		Type:            tournament.TypeQuickMatch,
		Subject:         "quiz",
		MaxParticipants: 3,
		IsPrivate:       true,
	})
	update := decodeLast[ws.TournamentUpdatePayload](t, he.rec, "host", ws.TypeTournamentUpdate)
	require.NotEmpty(t, update.InviteCode)

	he.send(t, "guest", ws.TypeJoinTournament, ws.JoinTournamentPayload{TournamentID: update.TournamentID, InviteCode: "WRONG1"})
	assert.Equal(t, httperrors.ErrCodeInvalidInviteCode, he.lastError(t, "guest").Code)

	he.send(t, "guest", ws.TypeJoinTournament, ws.JoinTournamentPayload{TournamentID: update.TournamentID, InviteCode: update.InviteCode})
	he.send(t, "guest", ws.TypeStartTournament, ws.TournamentRefPayload{TournamentID: update.TournamentID})
	assert.Equal(t, httperrors.ErrCodeNotHost, he.lastError(t, "guest").Code)

	he.send(t, "guest", ws.TypeStartGame, ws.StartGamePayload{Subject: "quiz"})
	assert.Equal(t, httperrors.ErrCodePlayerBusy, he.lastError(t, "guest").Code)

	he.send(t, "guest", ws.TypeLeaveTournament, nil)
	assert.False(t, he.registry.Busy("guest"))
	view, ok := he.tournaments.Get(update.TournamentID)
	require.True(t, ok)
	assert.Len(t, view.Participants, 1)
}

func TestChallengeMessages(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "a", ws.TypeChallengePlayer, ws.ChallengePlayerPayload{TargetID: "b", Subject: "quiz"})
	invite := decodeLast[ws.TournamentUpdatePayload](t, he.rec, "b", ws.TypeTournamentUpdate)
	assert.Equal(t, tournament.EventChallenge, invite.Event)

	he.send(t, "c", ws.TypeAcceptChallenge, ws.TournamentRefPayload{TournamentID: invite.TournamentID})
	assert.Equal(t, httperrors.ErrCodeChallengeFailed, he.lastError(t, "c").Code)

	he.send(t, "b", ws.TypeDeclineChallenge, ws.TournamentRefPayload{TournamentID: invite.TournamentID})
	_, ok := he.tournaments.Get(invite.TournamentID)
	assert.False(t, ok)
	assert.False(t, he.registry.Busy("a"))
}

func TestGetLeaderboard(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.board.Submit(leaderboard.BoardAllTime, "p2", "Bo", 900, he.clock.Now(), nil)
	he.board.Submit(leaderboard.BoardAllTime, "p1", "Al", 300, he.clock.Now(), nil)

	he.send(t, "p1", ws.TypeGetLeaderboard, ws.GetLeaderboardPayload{})
	data := decodeLast[ws.LeaderboardDataPayload](t, he.rec, "p1", ws.TypeLeaderboardData)
	assert.Equal(t, leaderboard.BoardAllTime, data.Board)
	require.Len(t, data.Entries, 2)
	assert.Equal(t, "p2", data.Entries[0].PlayerID)
	assert.Equal(t, 2, data.PlayerRank)
}

func TestRateLimitedConnection(t *testing.T) {
	he := newHandlerEnv(t, func(d *HandlerDeps) {
		d.MessagesPerSecond = 0.001
		d.Burst = 2
	})
	he.send(t, "p1", ws.TypePing, nil)
	he.send(t, "p1", ws.TypePing, nil)
	he.send(t, "p1", ws.TypePing, nil)

	assert.Len(t, he.rec.OfType("p1", ws.TypePong), 2)
	assert.Equal(t, httperrors.ErrCodeRateLimited, he.lastError(t, "p1").Code)
}

func TestPlayerGoneWithdrawsFromActivity(t *testing.T) {
	he := newHandlerEnv(t, nil)
	he.send(t, "q", ws.TypeJoinQueue, ws.JoinQueuePayload{Subject: "quiz", PlayerCount: 3})
	he.send(t, "s", ws.TypeStartGame, ws.StartGamePayload{Subject: "quiz"})
	he.send(t, "t", ws.TypeCreateTournament, ws.CreateTournamentPayload{Name: "Night Cup", Type: tournament.TypeLeague, Subject: "quiz", MaxParticipants: 6})
	for _, id := range []string{"q", "s", "t"} {
		require.True(t, he.registry.Busy(id), id)
	}

	for _, id := range []string{"q", "s", "t", "nobody"} {
		he.h.PlayerGone(id)
		assert.False(t, he.registry.Busy(id), id)
	}
	assert.Zero(t, he.queue.Size("quiz|beginner|3"))
	assert.Zero(t, he.sessions.Active())
	assert.Empty(t, he.tournaments.List())
}

func TestLeaveAllReportsActivity(t *testing.T) {
	he := newHandlerEnv(t, nil)
	id := he.form(t, "a", "b")
	require.NotEmpty(t, id)

	assert.Equal(t, activity.KindQuickMatch, he.h.leaveAll(context.Background(), "a"))
	assert.Equal(t, activity.Kind(""), he.h.leaveAll(context.Background(), "a"))
}
