package herald

import (
	"strconv"
	"time"
)

// DefaultTolerance is the maximum accepted skew between a request timestamp
// and the local clock. Slack signs requests with a 5 minute validity window.
const DefaultTolerance = 5 * time.Minute

// IsFresh reports whether timestamp (Unix seconds, decimal) is within
// tolerance of now in either direction. The boundary is inclusive: a request
// exactly tolerance old is still fresh. Timestamps that fail to parse are
// never fresh.
func IsFresh(timestamp string, now time.Time, tolerance time.Duration) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	return skew <= int64(tolerance/time.Second)
}
