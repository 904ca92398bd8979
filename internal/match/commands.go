package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-andiamo/splitter"

	"github.com/gokatarajesh/falling-trivia/internal/tournament"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errBadCommand     = errors.New("bad command")
)

// argSplitter splits on spaces but keeps quoted names like "Friday Cup" whole.
var argSplitter, _ = splitter.NewSplitter(' ', splitter.DoubleQuotes, splitter.LeftRightDoubleDoubleQuotes)

// command is a parsed chat command such as /queue math moderate 2.
type command struct {
	name string
	args []string
}

func (c command) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

func usage(format string) error {
	return fmt.Errorf("%w: usage %s", errBadCommand, format)
}

// parseCommand tokenises chat text. Quotes around an argument are dropped.
func parseCommand(text string) (command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}, fmt.Errorf("%w: commands start with /", errBadCommand)
	}
	parts, err := argSplitter.Split(text[1:])
	if err != nil {
		return command{}, fmt.Errorf("%w: %v", errBadCommand, err)
	}
	var tokens []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens = append(tokens, strings.Trim(p, "\"“”"))
	}
	if len(tokens) == 0 || tokens[0] == "" {
		return command{}, fmt.Errorf("%w: empty command", errBadCommand)
	}
	return command{name: strings.ToLower(tokens[0]), args: tokens[1:]}, nil
}

func optionalInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errBadCommand, s)
	}
	return n, nil
}

func (h *Handler) handleChatCommand(ctx context.Context, c *client, payload json.RawMessage) error {
	var req ws.ChatCommandPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	cmd, err := parseCommand(req.Text)
	if err != nil {
		return err
	}
	h.logger.Debug().Str("player_id", c.playerID).Str("command", cmd.name).Strs("args", cmd.args).Msg("chat command")
	return h.runCommand(ctx, c, cmd)
}

func (h *Handler) runCommand(ctx context.Context, c *client, cmd command) error {
	switch cmd.name {
	case "queue":
		if len(cmd.args) == 0 {
			return usage("/queue <subject> [difficulty] [players]")
		}
		players, err := optionalInt(cmd.arg(2), defaultPlayerCount)
		if err != nil {
			return err
		}
		return h.joinQueue(ctx, c, cmd.arg(0), cmd.arg(1), players)

	case "tournament":
		return h.runTournamentCommand(ctx, c, cmd)

	case "leave":
		if h.leaveAll(ctx, c.playerID) == "" {
			return fmt.Errorf("%w: nothing to leave", errBadCommand)
		}
		return nil

	case "challenge":
		if len(cmd.args) == 0 {
			return usage("/challenge <player> [subject] [difficulty]")
		}
		_, err := h.tournaments.ChallengePlayer(ctx, c.playerID, c.username, cmd.arg(0), tournament.Config{
			Subject:    cmd.arg(1),
			Difficulty: cmd.arg(2),
		})
		return err

	case "accept":
		if len(cmd.args) == 0 {
			return usage("/accept <tournament>")
		}
		_, err := h.tournaments.AcceptChallenge(ctx, c.playerID, c.username, cmd.arg(0))
		return err

	case "decline":
		if len(cmd.args) == 0 {
			return usage("/decline <tournament>")
		}
		return h.tournaments.DeclineChallenge(ctx, c.playerID, cmd.arg(0))

	case "top":
		limit, err := optionalInt(cmd.arg(1), defaultBoardLimit)
		if err != nil {
			return err
		}
		return h.sendLeaderboard(c, cmd.arg(0), limit, 0)
	}
	return fmt.Errorf("%w: /%s", errUnknownCommand, cmd.name)
}

func (h *Handler) runTournamentCommand(ctx context.Context, c *client, cmd command) error {
	sub := strings.ToLower(cmd.arg(0))
	args := command{name: sub}
	if len(cmd.args) > 1 {
		args.args = cmd.args[1:]
	}

	switch sub {
	case "create":
		if len(args.args) == 0 {
			return usage(`/tournament create "<name>" [type] [max] [subject] [difficulty]`)
		}
		typ := args.arg(1)
		if typ == "" {
			typ = tournament.TypeBracket
		}
		maxPlayers, err := optionalInt(args.arg(2), 8)
		if err != nil {
			return err
		}
		_, err = h.tournaments.CreateTournament(ctx, c.playerID, c.username, tournament.Config{
			Name:            args.arg(0),
			Type:            typ,
			MaxParticipants: maxPlayers,
			Subject:         args.arg(3),
			Difficulty:      args.arg(4),
		})
		return err

	case "join":
		if len(args.args) == 0 {
			return usage("/tournament join <id> [code]")
		}
		_, err := h.tournaments.JoinTournament(ctx, c.playerID, c.username, args.arg(0), args.arg(1))
		return err

	case "start":
		id := args.arg(0)
		if id == "" {
			cur, ok := h.tournaments.TournamentOf(c.playerID)
			if !ok {
				return usage("/tournament start <id>")
			}
			id = cur
		}
		return h.tournaments.StartTournament(ctx, c.playerID, id)

	case "leave":
		if !h.tournaments.LeaveTournament(ctx, c.playerID) {
			return tournament.ErrNotParticipant
		}
		return nil
	}
	return fmt.Errorf("%w: /tournament %s", errUnknownCommand, sub)
}
