package retry

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Reason codes recorded as last_error and in run reports.
const (
	ReasonNetwork        = "network_error"
	ReasonServer         = "server_error"
	ReasonRateLimited    = "rate_limited"
	ReasonNotFound       = "not_found"
	ReasonParse          = "parse_error"
	ReasonTooShort       = "too_short"
	ReasonNoContent      = "no_content"
	ReasonMissingLocator = "missing_locator"
)

// ClassifyHTTP maps a fetch failure to its failure kind and reason code.
// statusCode may be 0; it is then recovered from the error text when
// possible ("http 503").
func ClassifyHTTP(statusCode int, err error) (FailureKind, string) {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
		if statusCode == 0 {
			statusCode = ExtractStatusCode(msg)
		}
	}

	switch {
	case statusCode == 429:
		return Transient, ReasonRateLimited
	case statusCode >= 500 && statusCode < 600:
		return Transient, ReasonServer
	case statusCode == 404 || statusCode == 410:
		return Permanent, ReasonNotFound
	case statusCode >= 400:
		return Permanent, "http_" + strconv.Itoa(statusCode)
	}

	if err == nil {
		return Permanent, ReasonNoContent
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetworkError(msg) {
		return Transient, ReasonNetwork
	}
	if isParseError(msg) {
		return Permanent, ReasonParse
	}
	// A failure with no HTTP status never reached the server reliably.
	return Transient, ReasonNetwork
}

// ExtractStatusCode extracts an HTTP status code from an error message
// ("http 503", "status: 404"). Returns 0 if none is found.
func ExtractStatusCode(errMsg string) int {
	msg := strings.ToLower(errMsg)
	for _, prefix := range []string{"http ", "http: ", "status ", "status: "} {
		idx := strings.Index(msg, prefix)
		if idx < 0 {
			continue
		}
		numStr := strings.TrimSpace(msg[idx+len(prefix):])
		if sp := strings.IndexAny(numStr, " :,"); sp > 0 {
			numStr = numStr[:sp]
		}
		if code, err := strconv.Atoi(numStr); err == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}

func isParseError(msg string) bool {
	return strings.Contains(msg, "xml") && (strings.Contains(msg, "parse") || strings.Contains(msg, "syntax") || strings.Contains(msg, "unexpected")) ||
		strings.Contains(msg, "json") && (strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid") || strings.Contains(msg, "unexpected")) ||
		strings.Contains(msg, "encoding") && strings.Contains(msg, "invalid")
}

func isNetworkError(msg string) bool {
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "tls handshake")
}
