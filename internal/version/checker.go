// Package version reports the running build and checks GitHub for newer releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
	"golang.org/x/mod/semver"
)

// Check defaults.
const (
	DefaultRepo     = "oszuidwest/zwfm-voicecapture"
	DefaultAPIBase  = "https://api.github.com"
	DefaultInterval = 24 * time.Hour
	DefaultDelay    = 30000 * time.Millisecond // Delay before the first check to keep startup quiet

	requestTimeout = 30000 * time.Millisecond
	maxRetries     = 3
	retryDelay     = 1 * time.Minute
	maxRetryDelay  = 10 * time.Minute
)

// Build describes the running binary.
type Build struct {
	Version   string
	Commit    string
	BuildTime string
}

// Options configures a Checker. Zero values select the defaults.
type Options struct {
	Repo       string
	APIBase    string
	Interval   time.Duration
	Delay      time.Duration
	RetryDelay time.Duration
	Client     *http.Client
}

// Checker periodically fetches the latest release. It is safe for concurrent use.
type Checker struct {
	build   Build
	opts    Options
	backoff *util.Backoff

	mu     sync.RWMutex
	latest string
	etag   string // For conditional requests (304 Not Modified)

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewChecker creates a checker for build. Call Start to begin checking.
func NewChecker(build Build, opts Options) *Checker {
	if opts.Repo == "" {
		opts.Repo = DefaultRepo
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = retryDelay
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Checker{
		build:   build,
		opts:    opts,
		backoff: util.NewBackoff(opts.RetryDelay, maxRetryDelay),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background check loop.
func (c *Checker) Start() {
	go c.run()
}

// Stop ends the check loop and waits for it to exit. Stop must only be called after Start.
func (c *Checker) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	<-c.done
}

func (c *Checker) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	select {
	case <-time.After(c.opts.Delay):
		c.checkWithRetry()
	case <-c.stopCh:
		return
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkWithRetry()
		case <-c.stopCh:
			return
		}
	}
}

// checkWithRetry performs the check, backing off between failed attempts.
func (c *Checker) checkWithRetry() {
	defer c.backoff.Reset()

	for attempt := range maxRetries {
		if c.Check() {
			return
		}
		if attempt < maxRetries-1 {
			delay := c.backoff.Next()
			slog.Debug("version check failed, retrying", "attempt", c.backoff.Attempts(), "delay", delay)
			select {
			case <-time.After(delay):
			case <-c.stopCh:
				return
			}
		}
	}
	slog.Warn("version check failed", "attempts", maxRetries)
}

// githubRelease represents a release with version and status information.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Check fetches the latest release once and reports whether the check completed
// (false means it should be retried).
func (c *Checker) Check() bool {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		requestTimeout,
		errors.New("github API request timeout"),
	)
	defer cancel()

	url := strings.TrimSuffix(c.opts.APIBase, "/") + "/repos/" + c.opts.Repo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-voicecapture/"+c.build.Version)

	c.mu.RLock()
	etag := c.etag
	c.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // Best-effort cleanup; error doesn't affect caller
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified, http.StatusNotFound:
		return true
	case http.StatusForbidden, http.StatusTooManyRequests:
		return false
	default:
		// Server errors are retried; other client errors are not.
		return resp.StatusCode < 500
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return false
	}
	if release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	c.mu.Lock()
	c.latest = Normalize(release.TagName)
	if newEtag := resp.Header.Get("ETag"); newEtag != "" {
		c.etag = newEtag
	}
	c.mu.Unlock()

	return true
}

// Info returns the current version info for the frontend.
func (c *Checker) Info() types.VersionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := Normalize(c.build.Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    c.latest,
		Commit:    c.build.Commit,
		BuildTime: util.FormatHumanTime(c.build.BuildTime),
	}

	if c.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = IsNewer(c.latest, current)
	}

	return info
}

// Normalize strips whitespace and a leading "v".
func Normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// IsNewer reports whether latest is a newer semantic version than current.
func IsNewer(latest, current string) bool {
	return semver.Compare(canonical(latest), canonical(current)) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
