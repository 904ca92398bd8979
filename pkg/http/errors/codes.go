package errors

// Error codes shared by HTTP responses and WebSocket error messages.
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Resource errors
	ErrCodeNotFound      = "not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeConflict      = "conflict"

	// Activity errors
	ErrCodePlayerBusy   = "player_busy"
	ErrCodeNotInMatch   = "not_in_match"
	ErrCodeNoSession    = "no_active_session"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeSubmitFailed = "submit_failed"

	// Queue errors
	ErrCodeEnqueueFailed     = "enqueue_failed"
	ErrCodeInvalidQueueEntry = "invalid_queue_entry"

	// Tournament errors
	ErrCodeTournamentNotFound = "tournament_not_found"
	ErrCodeTournamentFull     = "tournament_full"
	ErrCodeTournamentState    = "tournament_wrong_state"
	ErrCodeInvalidInviteCode  = "invalid_invite_code"
	ErrCodeNotHost            = "not_host"
	ErrCodeChallengeFailed    = "challenge_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeUnknownCommand     = "unknown_command"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"

	// Leaderboard errors
	ErrCodeLeaderboardFetchFailed = "leaderboard_fetch_failed"
	ErrCodeUnknownBoard           = "unknown_leaderboard"
)
