// Package github is the source-host client: it resolves repository trees and
// raw file contents through a shared rate limiter with retry and backoff.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"

	"github.com/bull/code-expert/internal/ratelimit"
)

const (
	maxAttempts    = 3
	baseRetryDelay = time.Second
	requestTimeout = 30 * time.Second
)

// FileEntry is one blob in a repository tree listing.
type FileEntry struct {
	Path string // Path relative to the repository root
	SHA  string // Git blob SHA, the fetch handle
	URL  string // API URL of the blob
	Size int    // Blob size in bytes as reported by the tree
}

// Client fetches repository metadata, trees and file contents from GitHub.
// Every API call passes through the shared rate limiter before hitting the
// wire; transient failures retry with exponential backoff.
type Client struct {
	gh         *github.Client
	http       *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewClient creates an authenticated GitHub client. The token may be empty
// (unauthenticated, 60 req/hour on GitHub's side). Secondary rate limits are
// handled transparently by the transport; the primary hourly quota is
// enforced by the limiter.
func NewClient(token string, limiter *ratelimit.Limiter, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limit transport: %w", err)
	}
	httpClient.Timeout = requestTimeout

	ghClient := github.NewClient(httpClient)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{
		gh:         ghClient,
		http:       httpClient,
		limiter:    limiter,
		logger:     logger,
		retryDelay: baseRetryDelay,
	}, nil
}

// ValidateRepository reports whether the repository exists and is
// accessible. Never returns an error; any failure means false.
func (c *Client) ValidateRepository(ctx context.Context, owner, name string) bool {
	err := c.withRetry(ctx, "validate "+owner+"/"+name, func() (*github.Response, error) {
		_, resp, err := c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		c.logger.Warn("repository validation failed", "owner", owner, "repo", name, "error", err)
		return false
	}
	return true
}

// GetRepositoryTree lists the full recursive tree of the default branch,
// filtered to blob entries. Directories are excluded.
func (c *Client) GetRepositoryTree(ctx context.Context, owner, name string) ([]FileEntry, error) {
	var defaultBranch string
	err := c.withRetry(ctx, "get repository", func() (*github.Response, error) {
		repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
		if err == nil {
			defaultBranch = repo.GetDefaultBranch()
		}
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	var tree *github.Tree
	err = c.withRetry(ctx, "get tree", func() (*github.Response, error) {
		t, resp, err := c.gh.Git.GetTree(ctx, owner, name, defaultBranch, true)
		if err == nil {
			tree = t
		}
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, FileEntry{
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			URL:  e.GetURL(),
			Size: e.GetSize(),
		})
	}

	if tree.GetTruncated() {
		c.logger.Warn("repository tree truncated by API", "owner", owner, "repo", name, "entries", len(entries))
	}
	return entries, nil
}

// GetFileContent fetches and decodes one blob. Returns nil on any failure;
// fetch failures are logged, not raised, so a single bad file never aborts
// an ingestion batch.
func (c *Client) GetFileContent(ctx context.Context, owner, name string, entry FileEntry) []byte {
	var blob *github.Blob
	err := c.withRetry(ctx, "get blob "+entry.Path, func() (*github.Response, error) {
		b, resp, err := c.gh.Git.GetBlob(ctx, owner, name, entry.SHA)
		if err == nil {
			blob = b
		}
		return resp, err
	})
	if err != nil {
		c.logger.Warn("fetching file content failed", "path", entry.Path, "error", err)
		return nil
	}

	content := blob.GetContent()
	if blob.GetEncoding() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			c.logger.Warn("decoding blob failed", "path", entry.Path, "error", err)
			return nil
		}
		return decoded
	}
	return []byte(content)
}

// Close releases the client's network resources.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// withRetry runs one API call under the rate limiter with up to maxAttempts
// attempts and exponential backoff. A 403 carrying rate-limit exhaustion
// waits for the service-declared reset and retries without consuming an
// attempt; a 404 fails immediately as ErrNotFound.
func (c *Client) withRetry(ctx context.Context, desc string, call func() (*github.Response, error)) error {
	delay := c.retryDelay
	if delay <= 0 {
		delay = baseRetryDelay
	}

	for attempt := 0; attempt < maxAttempts; {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		resp, err := call()
		if err == nil {
			return nil
		}

		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			wait := time.Until(rateErr.Rate.Reset.Time)
			if wait < 0 {
				wait = 0
			}
			c.logger.Warn("rate limit exceeded, waiting for reset", "request", desc, "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		var abuseErr *github.AbuseRateLimitError
		if errors.As(err, &abuseErr) {
			wait := time.Minute
			if abuseErr.RetryAfter != nil {
				wait = *abuseErr.RetryAfter
			}
			c.logger.Warn("secondary rate limit hit, waiting", "request", desc, "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, desc)
		}

		attempt++
		if attempt == maxAttempts {
			return fmt.Errorf("%w: %s: %v", ErrMaxRetries, desc, err)
		}

		c.logger.Warn("request failed, retrying", "request", desc, "attempt", attempt, "delay", delay, "error", err)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return fmt.Errorf("%w: %s", ErrMaxRetries, desc)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
