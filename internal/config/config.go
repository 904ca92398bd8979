package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"falling-trivia"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Security    Security
	Gameplay    Gameplay
	Leaderboard Leaderboard
	Questions   Questions
	RateLimit   RateLimit
}

// Postgres captures connection info for the profile and archive database.
// An empty host keeps persistence in Redis or memory.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// Enabled reports whether a Postgres host was configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

// ConnString renders the keyword/value connection string understood by pgx.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// DSN is ConnString plus the pgxpool sizing parameter.
func (p Postgres) DSN() string {
	return fmt.Sprintf("%s pool_max_conns=%d", p.ConnString(), p.MaxConns)
}

// Redis holds snapshot, pub/sub and profile cache configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Enabled reports whether a Redis address was configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Security stores secrets for verifying player tokens issued by the host engine.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"falling-trivia"`
	// Empty accepts WebSocket upgrades from any origin.
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// Gameplay groups every timer and count used by the game state machines.
type Gameplay struct {
	QueueTimeout          time.Duration `env:"QUEUE_TIMEOUT" envDefault:"60s"`
	QuickMatchCountdown   time.Duration `env:"QUICK_MATCH_COUNTDOWN" envDefault:"5s"`
	QuickMatchQuestions   int           `env:"QUICK_MATCH_QUESTIONS" envDefault:"10"`
	QuestionTimeLimit     time.Duration `env:"QUESTION_TIME_LIMIT" envDefault:"15s"`
	ResultsGrace          time.Duration `env:"RESULTS_GRACE" envDefault:"10s"`
	InterRoundDelay       time.Duration `env:"TOURNAMENT_INTER_ROUND_DELAY" envDefault:"10s"`
	TournamentGrace       time.Duration `env:"TOURNAMENT_COMPLETION_GRACE" envDefault:"60s"`
	TournamentStartDelay  time.Duration `env:"TOURNAMENT_AUTO_START_DELAY" envDefault:"0s"`
	ChallengeTimeout      time.Duration `env:"CHALLENGE_TIMEOUT" envDefault:"60s"`
	TournamentQuestions   int           `env:"TOURNAMENT_QUESTIONS_PER_MATCH" envDefault:"5"`
	GenerationRetries     int           `env:"TOURNAMENT_GENERATION_RETRIES" envDefault:"3"`
	SessionSettleDelay    time.Duration `env:"SESSION_SETTLE_DELAY" envDefault:"1500ms"`
	SessionLandingTimeout time.Duration `env:"SESSION_LANDING_TIMEOUT" envDefault:"3s"`
	SessionMaxQuestions   int           `env:"SESSION_MAX_QUESTIONS" envDefault:"10"`
	TieBreakPolicy        string        `env:"TOURNAMENT_TIE_BREAK" envDefault:"coin_flip"`
}

// Leaderboard governs board capacity, reset checks and snapshotting.
type Leaderboard struct {
	Capacity           int           `env:"LEADERBOARD_CAPACITY" envDefault:"100"`
	ResetCheckInterval time.Duration `env:"LEADERBOARD_RESET_CHECK_INTERVAL" envDefault:"60s"`
	SnapshotInterval   time.Duration `env:"LEADERBOARD_SNAPSHOT_INTERVAL" envDefault:"5m"`
	FlushInterval      time.Duration `env:"LEADERBOARD_FLUSH_INTERVAL" envDefault:"10s"`
	SnapshotTopN       int           `env:"LEADERBOARD_SNAPSHOT_TOP" envDefault:"50"`
	PubSubChannel      string        `env:"LEADERBOARD_PUBSUB_CHANNEL" envDefault:"lb:updates"`
	Subjects           []string      `env:"LEADERBOARD_SUBJECTS" envSeparator:"," envDefault:"math,spelling,geography,science,history"`
}

// Questions configures the question registry.
type Questions struct {
	BanksDir       string        `env:"QUESTION_BANKS_DIR"`
	OpenTDBEnabled bool          `env:"OPENTDB_ENABLED" envDefault:"false"`
	OpenTDBBaseURL string        `env:"OPENTDB_BASE_URL" envDefault:"https://opentdb.com"`
	OpenTDBTimeout time.Duration `env:"OPENTDB_TIMEOUT" envDefault:"4s"`
}

// RateLimit throttles inbound WebSocket messages per connection.
type RateLimit struct {
	MessagesPerSecond float64 `env:"WS_MESSAGES_PER_SECOND" envDefault:"20"`
	Burst             int     `env:"WS_MESSAGE_BURST" envDefault:"40"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Postgres.Enabled() && (cfg.Postgres.User == "" || cfg.Postgres.Database == "") {
		return nil, fmt.Errorf("parse config: PG_USER and PG_DATABASE are required when PG_HOST is set")
	}
	return cfg, nil
}
