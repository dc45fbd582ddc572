package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/logger"
	"market-streamer/src/models"
)

const maxErrorBody = 512

// StatusError is returned for any non 2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: bad status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// -----------------------------------------------------------------------------

type AsyncNetworkManager struct {
	Config    *models.MConfig
	Client    *http.Client
	Logger    *logger.Logger
	BaseDelay time.Duration
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	return &AsyncNetworkManager{
		Config: cfg,
		Client: &http.Client{
			Timeout: time.Duration(cfg.Network.RequestTimeout) * time.Second,
		},
		Logger:    log,
		BaseDelay: time.Second,
	}
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries. Headers are applied verbatim.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, headers map[string]string) ([]byte, error) {
	return nm.do(ctx, http.MethodGet, urlStr, nil, "", headers)
}

// -----------------------------------------------------------------------------

// PostForm sends an application/x-www-form-urlencoded body with retries.
func (nm *AsyncNetworkManager) PostForm(ctx context.Context, urlStr string, form url.Values, headers map[string]string) ([]byte, error) {
	return nm.do(ctx, http.MethodPost, urlStr, []byte(form.Encode()), "application/x-www-form-urlencoded", headers)
}

// -----------------------------------------------------------------------------

// do retries transport failures, 429 and 5xx. Other 4xx answers are returned at once
// so callers can react (e.g. refresh a token on 401).
func (nm *AsyncNetworkManager) do(ctx context.Context, method, urlStr string, body []byte, contentType string, headers map[string]string) ([]byte, error) {
	operation := method + " " + urlStr

	return helpers.RetryWithBackoff(ctx, nm.Logger, operation, nm.Config.Network.MaxRetries+1, nm.BaseDelay, func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
		if err != nil {
			return nil, helpers.Permanent(err)
		}

		if nm.Config.Network.UserAgent != "" {
			req.Header.Set("User-Agent", nm.Config.Network.UserAgent)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := nm.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, helpers.Permanent(ctx.Err())
			}
			return nil, helpers.NewNetworkError("request failed", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, helpers.NewNetworkError("reading response body", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{
				Method:     method,
				URL:        urlStr,
				StatusCode: resp.StatusCode,
				Body:       truncate(strings.TrimSpace(string(payload)), maxErrorBody),
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				nm.Logger.Info("Retryable status %d from %s", resp.StatusCode, operation)
				return nil, statusErr
			}
			return nil, helpers.Permanent(statusErr)
		}

		return payload, nil
	})
}

// -----------------------------------------------------------------------------

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
