package api

import (
	"net/http"
	"strconv"
	"time"
)

// writeRateLimited answers 429 with Retry-After rounded up to whole seconds
// (never 0, which clients read as "retry now").
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts, try again later")
}
