package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/raphaelgruber/aiaio-go/internal/provider"
)

// ErrFatalAPI marks upstream failures that retrying will not fix:
// bad credentials, exhausted quota, billing problems.
var ErrFatalAPI = errors.New("fatal API error")

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}

// Classify wraps err with ErrFatalAPI when it is a fatal upstream failure
// and returns it unchanged otherwise.
func Classify(err error) error {
	return wrapFatalError(err)
}
