package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/auth/jwt"
	"github.com/gokatarajesh/falling-trivia/internal/leaderboard"
	"github.com/gokatarajesh/falling-trivia/internal/match/queue"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/session"
	"github.com/gokatarajesh/falling-trivia/internal/tournament"
	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

const (
	defaultPlayerCount = 2
	defaultBoardLimit  = 10
)

// HandlerDeps are the services the WebSocket handler routes to.
type HandlerDeps struct {
	Hub         *ws.Hub
	Sender      ws.Sender // defaults to Hub
	Registry    *activity.Registry
	Queue       *queue.Manager
	Matches     *QuickMatchManager
	Tournaments *tournament.Orchestrator
	Sessions    *session.Controller
	Leaderboard *leaderboard.Store
	Tokens      *jwt.Manager
	Metrics     *metrics.Collectors

	// Per-connection throttle. Zero disables it.
	MessagesPerSecond float64
	Burst             int
}

// Handler manages WebSocket connections and routes inbound messages to the
// queue, quick matches, tournaments, solo sessions and leaderboards.
type Handler struct {
	hub         *ws.Hub
	sender      ws.Sender
	registry    *activity.Registry
	queue       *queue.Manager
	matches     *QuickMatchManager
	tournaments *tournament.Orchestrator
	sessions    *session.Controller
	board       *leaderboard.Store
	tokens      *jwt.Manager
	metrics     *metrics.Collectors
	limit       rate.Limit
	burst       int
	logger      zerolog.Logger
}

// client is one authenticated connection.
type client struct {
	playerID string
	username string
	limiter  *rate.Limiter
}

// NewHandler creates the WebSocket handler and subscribes it to hub
// disconnects.
func NewHandler(deps HandlerDeps, logger zerolog.Logger) *Handler {
	sender := deps.Sender
	if sender == nil && deps.Hub != nil {
		sender = deps.Hub
	}
	burst := deps.Burst
	if burst <= 0 {
		burst = max(1, int(deps.MessagesPerSecond))
	}
	h := &Handler{
		hub:         deps.Hub,
		sender:      sender,
		registry:    deps.Registry,
		queue:       deps.Queue,
		matches:     deps.Matches,
		tournaments: deps.Tournaments,
		sessions:    deps.Sessions,
		board:       deps.Leaderboard,
		tokens:      deps.Tokens,
		metrics:     deps.Metrics,
		limit:       rate.Limit(deps.MessagesPerSecond),
		burst:       burst,
		logger:      logger.With().Str("component", "ws_handler").Logger(),
	}
	if deps.Hub != nil {
		deps.Hub.OnDisconnect(h.PlayerGone)
	}
	return h
}

func (h *Handler) newClient(playerID, username string) *client {
	c := &client{playerID: playerID, username: username}
	if h.limit > 0 {
		c.limiter = rate.NewLimiter(h.limit, h.burst)
	}
	return c
}

// HandleConnection serves an authenticated WebSocket connection until the
// peer goes away.
func (h *Handler) HandleConnection(conn *websocket.Conn, playerID, username string) {
	wsConn := ws.NewConnection(conn, h.logger.With().Str("player_id", playerID).Logger())
	h.hub.RegisterConnection(playerID, wsConn)
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	go wsConn.WritePump()

	c := h.newClient(playerID, username)
	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), c, msg)
	})

	// Fires PlayerGone unless a newer connection replaced this one.
	h.hub.UnregisterConnection(playerID, wsConn)
}

// PlayerGone withdraws a disconnected player from whatever they were doing.
// Tournament participants in a running bracket stay listed and forfeit.
func (h *Handler) PlayerGone(playerID string) {
	left := h.leaveAll(context.Background(), playerID)
	if left != "" {
		h.logger.Info().Str("player_id", playerID).Str("activity", string(left)).Msg("disconnected player withdrawn")
	}
}

// leaveAll removes the player from their current activity and names it.
func (h *Handler) leaveAll(ctx context.Context, playerID string) activity.Kind {
	cur, ok := h.registry.Current(playerID)
	if !ok {
		return ""
	}
	left := false
	switch cur.Kind {
	case activity.KindQueue:
		left = h.queue.Dequeue(playerID)
	case activity.KindQuickMatch:
		left = h.matches.Leave(playerID)
	case activity.KindTournament:
		left = h.tournaments.LeaveTournament(ctx, playerID)
	case activity.KindSession:
		left = h.sessions.QuitGame(playerID)
	}
	if !left {
		return ""
	}
	return cur.Kind
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(ctx context.Context, c *client, msg ws.Message) error {
	if c.limiter != nil && !c.limiter.Allow() {
		h.metrics.Throttled()
		return h.sendError(c.playerID, msg.RequestID, httperrors.ErrCodeRateLimited, "Too many messages")
	}

	var err error
	switch msg.Type {
	case ws.TypePing:
		return h.sender.SendToPlayer(c.playerID, ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
	case ws.TypeStartGame:
		err = h.handleStartGame(ctx, c, msg.Payload)
	case ws.TypeSubmitAnswer:
		err = h.handleSubmitAnswer(c, msg.Payload)
	case ws.TypeAnswerBlockHit:
		err = h.handleAnswerBlockHit(c, msg.Payload)
	case ws.TypeMissedBlocks:
		err = h.sessions.MissedBlocks(c.playerID)
	case ws.TypeLanded:
		err = h.sessions.Landed(c.playerID)
	case ws.TypeQuitGame:
		if !h.sessions.QuitGame(c.playerID) {
			err = session.ErrNoSession
		}
	case ws.TypeJoinQueue:
		err = h.handleJoinQueue(ctx, c, msg.Payload)
	case ws.TypeLeaveQueue:
		h.queue.Dequeue(c.playerID)
	case ws.TypeCreateTournament:
		err = h.handleCreateTournament(ctx, c, msg.Payload)
	case ws.TypeJoinTournament:
		err = h.handleJoinTournament(ctx, c, msg.Payload)
	case ws.TypeLeaveTournament:
		h.tournaments.LeaveTournament(ctx, c.playerID)
	case ws.TypeStartTournament:
		err = h.handleStartTournament(ctx, c, msg.Payload)
	case ws.TypeChallengePlayer:
		err = h.handleChallengePlayer(ctx, c, msg.Payload)
	case ws.TypeAcceptChallenge:
		err = h.handleAcceptChallenge(ctx, c, msg.Payload)
	case ws.TypeDeclineChallenge:
		err = h.handleDeclineChallenge(ctx, c, msg.Payload)
	case ws.TypeGetLeaderboard:
		err = h.handleGetLeaderboard(c, msg.Payload)
	case ws.TypeChatCommand:
		err = h.handleChatCommand(ctx, c, msg.Payload)
	default:
		return h.sendError(c.playerID, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}

	if err != nil {
		h.logger.Warn().Err(err).Str("player_id", c.playerID).Str("type", msg.Type).Msg("message rejected")
		return h.sendError(c.playerID, msg.RequestID, errorCode(err), err.Error())
	}
	return nil
}

// errInvalidPayload marks a payload that failed to decode.
var errInvalidPayload = errors.New("invalid payload")

func decode(payload json.RawMessage, dst interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}

func (h *Handler) handleStartGame(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.StartGamePayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.sessions.StartGame(ctx, c.playerID, c.username, req.Subject, req.Difficulty, req.Category)
	return err
}

func (h *Handler) handleSubmitAnswer(c *client, payload json.RawMessage) error {
	var req ws.SubmitAnswerPayload
	if err := decode(payload, &req); err != nil {
		return err
	}

	target := req.Context
	if target == "" {
		// Route by what the player is doing right now. Activity kinds share
		// their names with answer contexts.
		cur, ok := h.registry.Current(c.playerID)
		if !ok {
			return session.ErrNoSession
		}
		target = string(cur.Kind)
	}
	switch target {
	case session.ContextSession:
		return h.sessions.SubmitAnswer(c.playerID, req.Answer)
	case ContextQuickMatch:
		return h.matches.SubmitAnswer(c.playerID, req.Answer)
	case tournament.ContextTournament:
		return h.tournaments.SubmitAnswer(c.playerID, req.Answer)
	case string(activity.KindQueue):
		return ErrNotInMatch
	default:
		return fmt.Errorf("%w: unknown answer context %q", errInvalidPayload, req.Context)
	}
}

func (h *Handler) handleAnswerBlockHit(c *client, payload json.RawMessage) error {
	var req ws.AnswerBlockHitPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	return h.sessions.AnswerBlockHit(c.playerID, req.AnswerValue)
}

func (h *Handler) handleJoinQueue(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.JoinQueuePayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	return h.joinQueue(ctx, c, req.Subject, req.Difficulty, req.PlayerCount)
}

func (h *Handler) joinQueue(ctx context.Context, c *client, subject, difficulty string, players int) error {
	if players == 0 {
		players = defaultPlayerCount
	}
	_, err := h.queue.Enqueue(ctx, queue.Request{
		PlayerID:    c.playerID,
		Username:    c.username,
		Subject:     subject,
		Difficulty:  difficulty,
		PlayerCount: players,
	})
	return err
}

func (h *Handler) handleCreateTournament(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.CreateTournamentPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	cfg := tournament.Config{
		Name:              req.Name,
		Type:              req.Type,
		Subject:           req.Subject,
		Difficulty:        req.Difficulty,
		MinParticipants:   req.MinParticipants,
		MaxParticipants:   req.MaxParticipants,
		QuestionsPerMatch: req.QuestionsPerMatch,
		IsPrivate:         req.IsPrivate,
		InviteCode:        req.InviteCode,
		IsOfficial:        req.IsOfficial,
	}
	for _, r := range req.Rewards {
		cfg.Rewards = append(cfg.Rewards, tournament.Reward{Placement: r.Placement, Kind: r.Kind, Amount: r.Amount})
	}
	_, err := h.tournaments.CreateTournament(ctx, c.playerID, c.username, cfg)
	return err
}

func (h *Handler) handleJoinTournament(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.JoinTournamentPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.tournaments.JoinTournament(ctx, c.playerID, c.username, req.TournamentID, req.InviteCode)
	return err
}

func (h *Handler) handleStartTournament(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.TournamentRefPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	return h.tournaments.StartTournament(ctx, c.playerID, req.TournamentID)
}

func (h *Handler) handleChallengePlayer(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.ChallengePlayerPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.tournaments.ChallengePlayer(ctx, c.playerID, c.username, req.TargetID, tournament.Config{
		Subject:           req.Subject,
		Difficulty:        req.Difficulty,
		QuestionsPerMatch: req.QuestionsPerMatch,
	})
	return err
}

func (h *Handler) handleAcceptChallenge(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.TournamentRefPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.tournaments.AcceptChallenge(ctx, c.playerID, c.username, req.TournamentID)
	return err
}

func (h *Handler) handleDeclineChallenge(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.TournamentRefPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	return h.tournaments.DeclineChallenge(ctx, c.playerID, req.TournamentID)
}

func (h *Handler) handleGetLeaderboard(c *client, payload json.RawMessage) error {
	var req ws.GetLeaderboardPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	return h.sendLeaderboard(c, req.Board, req.Limit, req.Offset)
}

func (h *Handler) sendLeaderboard(c *client, board string, limit, offset int) error {
	if board == "" {
		board = leaderboard.BoardAllTime
	}
	if limit <= 0 {
		limit = defaultBoardLimit
	}
	data, err := h.board.Payload(board, limit, offset, c.playerID)
	if err != nil {
		return err
	}
	return ws.Notify(h.sender, ws.TypeLeaderboardData, data, c.playerID)
}

func (h *Handler) sendError(playerID, requestID, code, message string) error {
	msg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return h.sender.SendToPlayer(playerID, msg)
}

// errorCode maps service errors to the codes clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidPayload):
		return httperrors.ErrCodeInvalidPayload
	case errors.Is(err, errUnknownCommand):
		return httperrors.ErrCodeUnknownCommand
	case errors.Is(err, errBadCommand):
		return httperrors.ErrCodeInvalidRequest
	case errors.Is(err, queue.ErrBusy),
		errors.Is(err, tournament.ErrAlreadyInActivity),
		errors.Is(err, session.ErrAlreadyInActivity):
		return httperrors.ErrCodePlayerBusy
	case errors.Is(err, queue.ErrAlreadyQueued):
		return httperrors.ErrCodeAlreadyExists
	case errors.Is(err, queue.ErrInvalidRequest):
		return httperrors.ErrCodeInvalidQueueEntry
	case errors.Is(err, tournament.ErrInvalidConfig),
		errors.Is(err, question.ErrUnknownSubject):
		return httperrors.ErrCodeValidationFailed
	case errors.Is(err, tournament.ErrNotFound):
		return httperrors.ErrCodeTournamentNotFound
	case errors.Is(err, tournament.ErrFull):
		return httperrors.ErrCodeTournamentFull
	case errors.Is(err, tournament.ErrNotJoinable),
		errors.Is(err, tournament.ErrNotEnoughPlayers):
		return httperrors.ErrCodeTournamentState
	case errors.Is(err, tournament.ErrInviteCodeMismatch):
		return httperrors.ErrCodeInvalidInviteCode
	case errors.Is(err, tournament.ErrNotCreator):
		return httperrors.ErrCodeNotHost
	case errors.Is(err, tournament.ErrNotInvited):
		return httperrors.ErrCodeChallengeFailed
	case errors.Is(err, tournament.ErrNotParticipant),
		errors.Is(err, tournament.ErrNoActiveMatch),
		errors.Is(err, ErrNotInMatch):
		return httperrors.ErrCodeNotInMatch
	case errors.Is(err, session.ErrNoSession):
		return httperrors.ErrCodeNoSession
	case errors.Is(err, ErrNotPlaying),
		errors.Is(err, ErrAlreadyAnswered),
		errors.Is(err, tournament.ErrAlreadyAnswered),
		errors.Is(err, session.ErrNotAccepting):
		return httperrors.ErrCodeSubmitFailed
	case errors.Is(err, leaderboard.ErrUnknownBoard):
		return httperrors.ErrCodeUnknownBoard
	case errors.Is(err, question.ErrNoQuestions):
		return httperrors.ErrCodeServiceUnavailable
	default:
		return httperrors.ErrCodeInternalError
	}
}
