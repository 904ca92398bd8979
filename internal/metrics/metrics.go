// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "falling_trivia"

// Collectors groups every game metric. A nil *Collectors is valid and records
// nothing, so components can be built without metrics in tests.
type Collectors struct {
	QueueDepth          *prometheus.GaugeVec
	QuickMatchesFormed  *prometheus.CounterVec
	ActiveQuickMatches  prometheus.Gauge
	TournamentsFinished *prometheus.CounterVec
	TournamentMatches   *prometheus.CounterVec
	Answers             *prometheus.CounterVec
	LeaderboardImproved *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	PersistenceFailures *prometheus.CounterVec
	QuestionFallbacks   *prometheus.CounterVec
	WSMessagesThrottled prometheus.Counter
	WSConnections       prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Players waiting per matchmaking queue key.",
		}, []string{"queue"}),
		QuickMatchesFormed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quick_matches_formed_total",
			Help:      "Quick matches formed from the matchmaking queue.",
		}, []string{"subject", "difficulty"}),
		ActiveQuickMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quick_matches_active",
			Help:      "Quick matches currently running.",
		}),
		TournamentsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tournaments_finished_total",
			Help:      "Tournaments reaching a terminal status.",
		}, []string{"type", "status"}),
		TournamentMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tournament_matches_total",
			Help:      "Tournament matches completed, by how they were resolved.",
		}, []string{"resolution"}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers judged, by mode and correctness.",
		}, []string{"mode", "correct"}),
		LeaderboardImproved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_improvements_total",
			Help:      "Accepted leaderboard submissions per board.",
		}, []string{"board"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solo_sessions_active",
			Help:      "Solo falling-trivia sessions in progress.",
		}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Profile and archive writes that failed after retries.",
		}, []string{"op"}),
		QuestionFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_generation_failures_total",
			Help:      "Question generation failures per subject.",
		}, []string{"subject"}),
		WSMessagesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_throttled_total",
			Help:      "Inbound WebSocket messages dropped by the rate limiter.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.QueueDepth, c.QuickMatchesFormed, c.ActiveQuickMatches, c.TournamentsFinished,
		c.TournamentMatches, c.Answers, c.LeaderboardImproved, c.ActiveSessions,
		c.PersistenceFailures, c.QuestionFallbacks, c.WSMessagesThrottled, c.WSConnections,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) SetQueueDepth(key string, n int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(key).Set(float64(n))
}

func (c *Collectors) QuickMatchFormed(subject, difficulty string) {
	if c == nil {
		return
	}
	c.QuickMatchesFormed.WithLabelValues(subject, difficulty).Inc()
	c.ActiveQuickMatches.Inc()
}

func (c *Collectors) QuickMatchClosed() {
	if c == nil {
		return
	}
	c.ActiveQuickMatches.Dec()
}

func (c *Collectors) TournamentFinished(kind, status string) {
	if c == nil {
		return
	}
	c.TournamentsFinished.WithLabelValues(kind, status).Inc()
}

func (c *Collectors) TournamentMatchResolved(resolution string) {
	if c == nil {
		return
	}
	c.TournamentMatches.WithLabelValues(resolution).Inc()
}

func (c *Collectors) Answer(mode string, correct bool) {
	if c == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	c.Answers.WithLabelValues(mode, label).Inc()
}

func (c *Collectors) BoardImproved(board string) {
	if c == nil {
		return
	}
	c.LeaderboardImproved.WithLabelValues(board).Inc()
}

func (c *Collectors) SessionStarted() {
	if c == nil {
		return
	}
	c.ActiveSessions.Inc()
}

func (c *Collectors) SessionEnded() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}

func (c *Collectors) PersistenceFailed(op string) {
	if c == nil {
		return
	}
	c.PersistenceFailures.WithLabelValues(op).Inc()
}

func (c *Collectors) QuestionFailed(subject string) {
	if c == nil {
		return
	}
	c.QuestionFallbacks.WithLabelValues(subject).Inc()
}

func (c *Collectors) Throttled() {
	if c == nil {
		return
	}
	c.WSMessagesThrottled.Inc()
}

func (c *Collectors) ConnectionOpened() {
	if c == nil {
		return
	}
	c.WSConnections.Inc()
}

func (c *Collectors) ConnectionClosed() {
	if c == nil {
		return
	}
	c.WSConnections.Dec()
}
