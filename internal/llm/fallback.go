package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// fallbackCompleter tries the primary provider, then the secondary
type fallbackCompleter struct {
	primary   completer
	secondary completer
	logger    *slog.Logger
}

func (f *fallbackCompleter) name() string {
	return f.primary.name() + "+" + f.secondary.name()
}

func (f *fallbackCompleter) complete(ctx context.Context, prompt string) (string, error) {
	result, err := f.primary.complete(ctx, prompt)
	if err == nil {
		return result, nil
	}

	f.logger.Warn("Primary LLM provider failed, falling back",
		"primary", f.primary.name(),
		"fallback", f.secondary.name(),
		"reason", failureKind(err),
		"error", err)

	result, fallbackErr := f.secondary.complete(ctx, prompt)
	if fallbackErr != nil {
		return "", fmt.Errorf("%s failed (%v), fallback %s failed: %w", f.primary.name(), err, f.secondary.name(), fallbackErr)
	}
	return result, nil
}

// failureKind labels an error for logging
func failureKind(err error) string {
	switch {
	case isQuotaError(err):
		return "quota"
	case isConnectionError(err):
		return "connection"
	default:
		return "other"
	}
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"connection refused", "no such host", "network is unreachable", "connection reset", "dial tcp", "eof"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func isQuotaError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"quota", "rate limit", "too many requests", "resource_exhausted"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
