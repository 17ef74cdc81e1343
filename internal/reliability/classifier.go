package reliability

import (
	"fmt"
	"net/http"
)

// StatusSessionExpired is the non-standard code the conversational backend
// answers with once a thread has been idle for too long.
const StatusSessionExpired = 440

// IsRetryableHTTPStatus classifies statuses where trying again later may succeed.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// DescribeHTTPStatus turns a failing backend status into a short human-readable summary.
func DescribeHTTPStatus(code int) string {
	switch {
	case code == StatusSessionExpired:
		return "conversation expired after inactivity"
	case code == http.StatusBadRequest:
		return "backend rejected the request"
	case code == http.StatusNotFound:
		return "conversation not found on the backend"
	case code == http.StatusTooManyRequests:
		return "backend is rate limiting requests"
	case code >= 500:
		return fmt.Sprintf("backend unavailable (status %d)", code)
	default:
		return fmt.Sprintf("unexpected backend status %d", code)
	}
}

// StatusClass buckets a failing backend status into a low-cardinality label
// suitable for metrics.
func StatusClass(code int) string {
	switch {
	case code == StatusSessionExpired:
		return "expired"
	case code == http.StatusNotFound:
		return "not_found"
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 500:
		return "unavailable"
	case code >= 400:
		return "rejected"
	default:
		return "unexpected"
	}
}
