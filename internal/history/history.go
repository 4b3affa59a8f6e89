package history

import (
	"context"
	"time"
)

// Event is the persisted record of one executed control action.
type Event struct {
	ID         string        `json:"id"`
	Action     string        `json:"action"`
	Succeeded  bool          `json:"succeeded"`
	Message    string        `json:"message"`
	OccurredAt time.Time     `json:"occurred_at"`
	Duration   time.Duration `json:"duration"`
}

// Sink is a destination for action events (audit or analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can read back their newest events.
type Reader interface {
	// Recent returns at most limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// DefaultLimit caps Recent when the caller passes a non-positive limit.
const DefaultLimit = 50

// NormalizeLimit clamps limit to [1, 1000], mapping non-positive values to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// MillisToDuration converts a stored millisecond count back to a Duration.
func MillisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
