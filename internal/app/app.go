package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/falling-trivia/internal/activity"
	"github.com/gokatarajesh/falling-trivia/internal/auth"
	"github.com/gokatarajesh/falling-trivia/internal/auth/jwt"
	"github.com/gokatarajesh/falling-trivia/internal/config"
	"github.com/gokatarajesh/falling-trivia/internal/leaderboard"
	"github.com/gokatarajesh/falling-trivia/internal/logging"
	"github.com/gokatarajesh/falling-trivia/internal/match"
	"github.com/gokatarajesh/falling-trivia/internal/match/queue"
	"github.com/gokatarajesh/falling-trivia/internal/match/scoring"
	"github.com/gokatarajesh/falling-trivia/internal/metrics"
	"github.com/gokatarajesh/falling-trivia/internal/profile"
	"github.com/gokatarajesh/falling-trivia/internal/question"
	"github.com/gokatarajesh/falling-trivia/internal/question/external"
	"github.com/gokatarajesh/falling-trivia/internal/server"
	"github.com/gokatarajesh/falling-trivia/internal/session"
	"github.com/gokatarajesh/falling-trivia/internal/tournament"
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

const (
	profileCacheTTL = 30 * time.Minute
	triviaCacheTTL  = time.Hour
	snapshotPrefix  = "lb:snapshot"
	restoreTimeout  = 5 * time.Second
)

// worker is a background loop that runs until its context is canceled.
type worker interface {
	Run(ctx context.Context) error
}

// Application aggregates shared infrastructure (DB, cache, HTTP server) and
// the background workers that keep leaderboards in sync.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	workers map[string]worker
	// drain lists services with result writes in flight.
	drain []interface{ Wait() }
}

// New bootstraps configs, logger, optional Postgres and Redis, every game
// service and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.Enabled() {
		pool, err = pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	} else {
		logger.Warn().Msg("postgres not configured; profiles and archives stay in memory or redis")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	} else {
		logger.Warn().Msg("redis not configured; leaderboard snapshots and pub/sub disabled")
	}

	server.AllowedOrigins = cfg.Security.AllowedOrigins

	questions, err := buildQuestions(cfg, redisClient, logger)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	hub := ws.NewHub(logger)
	registry := activity.NewRegistry(logger)
	engine := scoring.NewEngine(scoring.DefaultScoringConfig())
	workers := make(map[string]worker)

	// Leaderboards publish through Redis when available so every instance
	// relays updates to its own connections.
	var publisher leaderboard.Publisher = leaderboard.NewDirectPublisher(hub)
	if redisClient != nil {
		publisher = leaderboard.NewRedisPublisher(redisClient, cfg.Leaderboard.PubSubChannel)
		workers["leaderboard_broadcaster"] = leaderboard.NewBroadcaster(redisClient, hub, cfg.Leaderboard.PubSubChannel, logger)
	}
	board := leaderboard.NewStore(logger, leaderboard.Options{
		Capacity:  cfg.Leaderboard.Capacity,
		Subjects:  cfg.Leaderboard.Subjects,
		Publisher: publisher,
		Metrics:   mtr,
	})

	var snapshots leaderboard.SnapshotStore
	if redisClient != nil {
		snapshots = leaderboard.NewRedisSnapshotStore(redisClient, snapshotPrefix)
		restoreCtx, cancel := context.WithTimeout(ctx, restoreTimeout)
		if err := board.Restore(restoreCtx, snapshots); err != nil {
			logger.Warn().Err(err).Msg("leaderboard restore failed; starting empty")
		}
		cancel()
	}
	var lbArchive leaderboard.Archive
	if pool != nil {
		lbArchive = leaderboard.NewPostgresArchive(pool)
	}
	if snapshots != nil || lbArchive != nil {
		workers["leaderboard_snapshot"] = leaderboard.NewSnapshotWorker(board, leaderboard.SnapshotWorkerOptions{
			Snapshots:     snapshots,
			Archive:       lbArchive,
			Metrics:       mtr,
			FlushInterval: cfg.Leaderboard.FlushInterval,
			Interval:      cfg.Leaderboard.SnapshotInterval,
			TopN:          cfg.Leaderboard.SnapshotTopN,
		}, logger)
	}
	workers["leaderboard_resets"] = leaderboard.NewResetWorker(board, nil, cfg.Leaderboard.ResetCheckInterval, logger)

	profiles := profile.NewService(buildProfileStore(pool, redisClient), logger, profile.Options{Metrics: mtr})

	tieBreak, err := tournament.TieBreakerByName(cfg.Gameplay.TieBreakPolicy, newRand())
	if err != nil {
		return nil, fmt.Errorf("tournament tie break: %w", err)
	}
	var results tournament.ResultArchive = tournament.NewMemoryArchive()
	if pool != nil {
		results = tournament.NewPostgresArchive(pool)
	}

	queues := queue.NewManager(registry, logger, queue.Options{
		Timeout: cfg.Gameplay.QueueTimeout,
		Sender:  hub,
		Metrics: mtr,
	})
	matches := match.NewQuickMatchManager(registry, questions, logger, match.Options{
		Countdown:         cfg.Gameplay.QuickMatchCountdown,
		QuestionTimeLimit: cfg.Gameplay.QuestionTimeLimit,
		ResultsGrace:      cfg.Gameplay.ResultsGrace,
		Questions:         cfg.Gameplay.QuickMatchQuestions,
		Sender:            hub,
		Scoring:           engine,
		Leaderboard:       board,
		Profiles:          profiles,
		Metrics:           mtr,
	})
	queues.OnFormation(matches.Start)

	tournaments := tournament.NewOrchestrator(registry, questions, logger, tournament.Options{
		QuestionTimeLimit: cfg.Gameplay.QuestionTimeLimit,
		InterRoundDelay:   cfg.Gameplay.InterRoundDelay,
		CompletionGrace:   cfg.Gameplay.TournamentGrace,
		AutoStartDelay:    cfg.Gameplay.TournamentStartDelay,
		ChallengeTimeout:  cfg.Gameplay.ChallengeTimeout,
		QuestionsPerMatch: cfg.Gameplay.TournamentQuestions,
		GenerationRetries: cfg.Gameplay.GenerationRetries,
		Sender:            hub,
		Scoring:           engine,
		TieBreaker:        tieBreak,
		Rand:              newRand(),
		Rewards:           tournament.ProfileRewards{Profiles: profiles},
		Profiles:          profiles,
		Archive:           results,
		Metrics:           mtr,
	})

	sessions := session.NewController(registry, questions, logger, session.Options{
		SettleDelay:    cfg.Gameplay.SessionSettleDelay,
		LandingTimeout: cfg.Gameplay.SessionLandingTimeout,
		MaxQuestions:   cfg.Gameplay.SessionMaxQuestions,
		Sender:         hub,
		Physics:        session.MessageSink{Sender: hub},
		Scoring:        engine,
		Leaderboard:    board,
		Profiles:       profiles,
		Metrics:        mtr,
	})

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		Issuer: cfg.Security.JWTIssuer,
	})
	wsHandler := match.NewHandler(match.HandlerDeps{
		Hub:               hub,
		Registry:          registry,
		Queue:             queues,
		Matches:           matches,
		Tournaments:       tournaments,
		Sessions:          sessions,
		Leaderboard:       board,
		Tokens:            tokens,
		Metrics:           mtr,
		MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, logger)

	apiServer := server.NewHTTPServer(cfg, logger, server.Deps{
		Pool:      pool,
		Redis:     redisClient,
		Gatherer:  reg,
		WebSocket: wsHandler.HandleWebSocket,
		Routes: []server.Registrar{
			leaderboard.NewHTTPHandler(board, lbArchive, logger),
			tournament.NewHTTPHandler(tournaments, logger),
			match.NewHTTPHandlers(registry, queues, matches, sessions, logger),
			profile.NewHTTPHandler(profiles, auth.Middleware(tokens, logger), logger),
		},
	})

	logger.Info().
		Strs("subjects", questions.Subjects()).
		Bool("postgres", pool != nil).
		Bool("redis", redisClient != nil).
		Msg("application ready")

	return &Application{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		redis:   redisClient,
		http:    apiServer,
		workers: workers,
		drain:   []interface{ Wait() }{matches, tournaments},
	}, nil
}

// newRand returns an independent source; callers guard their own copy.
func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// buildQuestions registers the embedded and override banks plus, when
// enabled, the OpenTDB trivia feed.
func buildQuestions(cfg *config.App, redisClient *redis.Client, logger zerolog.Logger) (*question.Registry, error) {
	questions := question.NewRegistry(logger)
	banks, err := question.LoadBanks(cfg.Questions.BanksDir, nil)
	if err != nil {
		return nil, fmt.Errorf("load question banks: %w", err)
	}
	questions.RegisterBanks(banks)

	if cfg.Questions.OpenTDBEnabled {
		client := external.NewOpenTDBClient(cfg.Questions.OpenTDBBaseURL, &http.Client{Timeout: cfg.Questions.OpenTDBTimeout})
		var cache question.BatchCache
		if redisClient != nil {
			cache = question.NewRedisBatchCache(redisClient, triviaCacheTTL)
		}
		questions.Register(question.SubjectTrivia, question.NewTriviaGenerator(client, cache, logger))
	}
	return questions, nil
}

// buildProfileStore prefers Postgres (read-through cached in Redis when both
// are configured), then Redis, then memory.
func buildProfileStore(pool *pgxpool.Pool, redisClient *redis.Client) profile.Store {
	switch {
	case pool != nil && redisClient != nil:
		return profile.NewCachedStore(profile.NewPostgresStore(pool), profile.NewRedisStore(redisClient, profileCacheTTL))
	case pool != nil:
		return profile.NewPostgresStore(pool)
	case redisClient != nil:
		return profile.NewRedisStore(redisClient, 0)
	default:
		return profile.NewMemoryStore()
	}
}

// Run starts the HTTP server and background workers, and waits for a
// termination signal or the first failure.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	for name, w := range a.workers {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Str("worker", name).Msg("background worker stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
		defer cancel()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("http shutdown error")
		}
		return nil
	})

	err := g.Wait()
	a.close()
	a.logger.Info().Msg("shutdown complete")
	return err
}

func (a *Application) close() {
	for _, d := range a.drain {
		d.Wait()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}
}
