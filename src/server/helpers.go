package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"market-streamer/src/helpers"

	"github.com/gin-gonic/gin"
)

const (
	defaultLookback     = 24 * time.Hour
	defaultLiveDuration = 10 * time.Second
	maxLiveDuration     = 5 * time.Minute
)

// -----------------------------------------------------------------------------

func durationQuery(c *gin.Context, key string, def time.Duration) (time.Duration, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// -----------------------------------------------------------------------------

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		pre       *helpers.PreconditionError
		rejected  *helpers.AuthRejectedError
		transport *helpers.TransportError
		network   *helpers.NetworkError
		database  *helpers.DatabaseError
	)
	switch {
	case errors.As(err, &pre):
		return http.StatusBadRequest
	case errors.As(err, &rejected):
		return http.StatusUnauthorized
	case errors.As(err, &transport), errors.As(err, &network):
		return http.StatusBadGateway
	case errors.As(err, &database):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error plus whatever partial payload the call produced.
func (s *FastAPIServer) respondError(c *gin.Context, err error, partial gin.H) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	body := gin.H{"error": err.Error()}
	for k, v := range partial {
		body[k] = v
	}
	c.JSON(status, body)
}

// -----------------------------------------------------------------------------

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
