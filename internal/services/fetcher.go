package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// PageFetcher downloads ward pages politely: one shared rate limit across every caller,
// retries with backoff, rotating browser user agents and charset decoding to UTF-8.
type PageFetcher struct {
	httpClient  *http.Client
	userAgents  []string
	retryConfig RetryConfig
	limiter     *rate.Limiter
}

// RetryConfig defines retry behavior for failed requests
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Page is a fetched document, always UTF-8
type Page struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
	FetchedAt   time.Time
	Attempts    int
}

// StatusError is returned for non-200 responses
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying can help
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewPageFetcher creates a fetcher limited to ratePerSec requests per second.
// A non-positive rate disables the limit.
func NewPageFetcher(ratePerSec float64) *PageFetcher {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		IdleConnTimeout: 90 * time.Second,
	}

	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}

	return &PageFetcher{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		retryConfig: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  1 * time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Fetch downloads url and returns its body decoded to UTF-8
func (f *PageFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	var lastErr error
	for attempt := 0; attempt <= f.retryConfig.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		page, err := f.attemptFetch(ctx, url, attempt)
		if err == nil {
			page.Attempts = attempt + 1
			return page, nil
		}
		lastErr = err

		// Client errors will not change on retry
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < f.retryConfig.MaxRetries {
			delay := f.calculateDelay(attempt)
			log.Printf("Attempt %d failed for %s, retrying in %v: %v", attempt+1, url, delay, err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch %s: %w", url, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch %s: %w", url, lastErr)
}

func (f *PageFetcher) attemptFetch(ctx context.Context, url string, attempt int) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	f.setHeaders(req, attempt)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	contentType := resp.Header.Get("Content-Type")
	reader, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	return &Page{
		URL:         url,
		Body:        body,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		FetchedAt:   time.Now(),
	}, nil
}

func (f *PageFetcher) setHeaders(req *http.Request, attempt int) {
	req.Header.Set("User-Agent", f.userAgents[attempt%len(f.userAgents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.8,en;q=0.6")

	if attempt > 0 {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
}

// calculateDelay calculates the backoff delay before the next attempt, with jitter
func (f *PageFetcher) calculateDelay(attempt int) time.Duration {
	delay := float64(f.retryConfig.InitialDelay)*
		math.Pow(f.retryConfig.BackoffFactor, float64(attempt)) +
		(rand.Float64() * 0.1 * float64(f.retryConfig.InitialDelay))

	if delay > float64(f.retryConfig.MaxDelay) {
		delay = float64(f.retryConfig.MaxDelay)
	}

	return time.Duration(delay)
}

// SetUserAgents replaces the user agent rotation
func (f *PageFetcher) SetUserAgents(userAgents []string) {
	if len(userAgents) > 0 {
		f.userAgents = userAgents
	}
}

// SetRetryConfig replaces the retry policy
func (f *PageFetcher) SetRetryConfig(config RetryConfig) {
	f.retryConfig = config
}
