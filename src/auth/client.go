package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"market-streamer/src/helpers"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/network"
)

// -----------------------------------------------------------------------------

type oauthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type quoteTokenResponse struct {
	Data struct {
		Token     string `json:"token"`
		DxlinkURL string `json:"dxlink-url"`
	} `json:"data"`
}

// -----------------------------------------------------------------------------

// TastyClient talks to the brokerage REST API: OAuth refresh, quote token issue and
// the snapshot and earnings lookups in market.go.
type TastyClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	net          interfaces.INetworkManager
	log          *logger.Logger
	now          func() time.Time

	mu           sync.Mutex
	refreshToken string
	accessToken  string
}

// -----------------------------------------------------------------------------

func NewTastyClient(baseURL string, api models.MApiConfig, net interfaces.INetworkManager, log *logger.Logger) *TastyClient {
	return &TastyClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     api.ClientID,
		clientSecret: api.ClientSecret,
		refreshToken: api.RefreshToken,
		net:          net,
		log:          log,
		now:          time.Now,
	}
}

// -----------------------------------------------------------------------------

// RefreshAccessToken exchanges the refresh token for a new access token. A rotated
// refresh token in the answer replaces the current one.
func (c *TastyClient) RefreshAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *TastyClient) refreshLocked(ctx context.Context) (string, error) {
	if c.refreshToken == "" {
		return "", helpers.NewConfigurationError("refresh token is not configured")
	}

	c.log.Info("Refreshing OAuth access token")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	body, err := c.net.PostForm(ctx, c.baseURL+"/oauth/token", form, nil)
	if err != nil {
		return "", fmt.Errorf("oauth refresh: %w", err)
	}

	var resp oauthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", helpers.NewNetworkError("decoding oauth response", err)
	}
	if resp.AccessToken == "" {
		return "", helpers.NewNetworkError("oauth response carries no access_token", nil)
	}

	c.accessToken = resp.AccessToken
	if resp.RefreshToken != "" && resp.RefreshToken != c.refreshToken {
		c.refreshToken = resp.RefreshToken
		c.log.Info("Refresh token rotated")
	}

	c.log.Info("Access token obtained, expires in %d seconds", resp.ExpiresIn)
	return c.accessToken, nil
}

// -----------------------------------------------------------------------------

// FetchQuoteToken requests a streaming token. On a 401 the access token is refreshed
// once and the request repeated.
func (c *TastyClient) FetchQuoteToken(ctx context.Context) (*models.MQuoteToken, error) {
	body, err := c.authorizedGet(ctx, "/api-quote-tokens")
	if err != nil {
		return nil, fmt.Errorf("quote token: %w", err)
	}

	var resp quoteTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, helpers.NewNetworkError("decoding quote token response", err)
	}
	if resp.Data.Token == "" || resp.Data.DxlinkURL == "" {
		return nil, helpers.NewNetworkError("quote token response is missing token or dxlink-url", nil)
	}

	c.log.Info("API quote token obtained (length=%d), DxLink URL: %s", len(resp.Data.Token), resp.Data.DxlinkURL)

	return &models.MQuoteToken{
		Token:     resp.Data.Token,
		URL:       resp.Data.DxlinkURL,
		Timestamp: c.now(),
	}, nil
}

// -----------------------------------------------------------------------------

// authorizedGet fetches path with the bearer token, obtaining one first when none is
// held. A 401 triggers one refresh and one repeat.
func (c *TastyClient) authorizedGet(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" {
		if _, err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	body, err := c.getLocked(ctx, path)
	if network.IsStatus(err, http.StatusUnauthorized) {
		c.log.Info("Access token expired while getting %s, refreshing", path)
		if _, err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
		body, err = c.getLocked(ctx, path)
	}
	return body, err
}

func (c *TastyClient) getLocked(ctx context.Context, path string) ([]byte, error) {
	return c.net.Get(ctx, c.baseURL+path, map[string]string{
		"Authorization": "Bearer " + c.accessToken,
	})
}
