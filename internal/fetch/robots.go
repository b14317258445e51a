// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsAuditor fetches and caches robots.txt per host and answers
// allow/deny for candidate URLs. A robots.txt that cannot be fetched or
// parsed defaults to allow, so an unreachable policy file never blocks the
// run; an explicit Disallow always wins.
type robotsAuditor struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData // scheme://host → parsed robots (nil = unusable)
}

func newRobotsAuditor(client *http.Client, userAgent string, logger *zap.Logger) *robotsAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsAuditor{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// isAllowed reports whether targetURL may be fetched under the host's
// robots directives for the configured User-Agent.
func (r *robotsAuditor) isAllowed(ctx context.Context, targetURL string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow",
			zap.String("host", host), zap.Error(err))
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	group := data.FindGroup(r.userAgent)
	return group.Test(u.Path), nil
}

func (r *robotsAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if data, exists = r.cache[host]; exists {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("creating robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("fetching robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Missing robots.txt means no restrictions.
		r.cache[host] = nil
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("reading robots.txt: %w", err)
	}

	parsed, err := robotstxt.FromBytes(body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("parsing robots.txt: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
