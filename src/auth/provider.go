package auth

import (
	"context"
	"sync"
	"time"

	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// quoteTokenFetcher is satisfied by *TastyClient.
type quoteTokenFetcher interface {
	FetchQuoteToken(ctx context.Context) (*models.MQuoteToken, error)
}

// -----------------------------------------------------------------------------

// Provider implements interfaces.ITokenProvider: memory first, then the disk cache,
// then the REST API.
type Provider struct {
	fetcher quoteTokenFetcher
	cache   *TokenCache
	ttl     time.Duration
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *models.MQuoteToken
}

func NewProvider(fetcher quoteTokenFetcher, cache *TokenCache, ttl time.Duration, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Provider{
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

func (p *Provider) QuoteToken(ctx context.Context) (*models.MQuoteToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.current.Valid(now, p.ttl) {
		return p.current, nil
	}

	if p.cache != nil {
		if tok, ok := p.cache.Load(now); ok {
			p.log.Debug("Using cached quote token issued at %s", tok.Timestamp.Format(time.RFC3339))
			p.current = tok
			return tok, nil
		}
	}

	tok, err := p.fetcher.FetchQuoteToken(ctx)
	if err != nil {
		return nil, err
	}
	p.current = tok

	if p.cache != nil {
		if err := p.cache.Store(tok); err != nil {
			p.log.Warning("Failed to persist quote token cache: %v", err)
		}
	}
	return tok, nil
}

// -----------------------------------------------------------------------------

func (p *Provider) Invalidate() error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	if p.cache != nil {
		return p.cache.Clear()
	}
	return nil
}
