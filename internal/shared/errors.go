package shared

import "fmt"

var (
	ErrNotImplemented      = fmt.Errorf("not implemented")
	ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed        = fmt.Errorf("authentication failed")
	ErrNotAuthenticated  = fmt.Errorf("not authenticated")
	ErrChallengeExpired  = fmt.Errorf("login challenge expired")
	ErrChallengePending  = fmt.Errorf("login challenge still pending")
	ErrHandshakeCanceled = fmt.Errorf("login handshake cancelled")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrRemoteRejected     = fmt.Errorf("request rejected by server")
	ErrMalformedResponse  = fmt.Errorf("malformed response")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTaskNotFound       = fmt.Errorf("task not found")

	// Sync errors
	ErrStaleResult = fmt.Errorf("result discarded after state was cleared")

	// Local cache errors
	ErrCacheMiss = fmt.Errorf("nothing cached")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
