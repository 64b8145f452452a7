package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Static errors for version checking
var (
	ErrVersionCheckFailed = errors.New("version check failed")
)

// GitHubRelease is the part of GitHub's latest release response we read
type GitHubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// VersionCheckResult contains the result of checking for updates
type VersionCheckResult struct {
	UpdateAvailable bool
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	Error           error
}

const (
	githubAPIURL        = "https://api.github.com/repos/airframesio/table-reconciler/releases/latest"
	versionCheckTimeout = 5 * time.Second
	versionCheckWait    = 2 * time.Second
	cacheExpiry         = 24 * time.Hour
)

// stateDir holds the version cache and load locks.
func stateDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".table-reconciler")
}

// updateChecker looks up the latest release, caching the answer on disk.
type updateChecker struct {
	url       string
	cachePath string
	client    *http.Client
}

func newUpdateChecker() *updateChecker {
	return &updateChecker{
		url:       githubAPIURL,
		cachePath: filepath.Join(stateDir(), "version_check.json"),
		client:    &http.Client{Timeout: versionCheckTimeout},
	}
}

// Check compares currentVersion with the latest release. Development
// builds are never checked.
func (u *updateChecker) Check(ctx context.Context, currentVersion string) VersionCheckResult {
	result := VersionCheckResult{CurrentVersion: currentVersion}
	if currentVersion == "dev" || currentVersion == "" {
		return result
	}

	if cached := u.readCache(); cached != nil && time.Since(cached.Timestamp) < cacheExpiry {
		result.UpdateAvailable = compareVersions(cached.LatestVersion, strings.TrimPrefix(currentVersion, "v")) > 0
		result.LatestVersion = cached.LatestVersion
		result.ReleaseURL = cached.ReleaseURL
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result
	}
	// GitHub rejects requests without a User-Agent
	req.Header.Set("User-Agent", fmt.Sprintf("table-reconciler/%s", currentVersion))

	resp, err := u.client.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to fetch latest release: %w", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("%w: status %d", ErrVersionCheckFailed, resp.StatusCode)
		return result
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		result.Error = fmt.Errorf("failed to decode response: %w", err)
		return result
	}

	result.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	result.ReleaseURL = release.HTMLURL
	result.UpdateAvailable = compareVersions(result.LatestVersion, strings.TrimPrefix(currentVersion, "v")) > 0

	u.writeCache(VersionCheckCache{
		LatestVersion: result.LatestVersion,
		ReleaseURL:    result.ReleaseURL,
		Timestamp:     time.Now(),
	})
	return result
}

// compareVersions compares two semantic version strings
// Returns: 1 if v1 > v2, -1 if v1 < v2, 0 if equal
func compareVersions(v1, v2 string) int {
	parts1 := parseVersion(v1)
	parts2 := parseVersion(v2)

	for i := 0; i < 3; i++ {
		if parts1[i] > parts2[i] {
			return 1
		}
		if parts1[i] < parts2[i] {
			return -1
		}
	}
	return 0
}

// parseVersion parses a semantic version string into [major, minor, patch]
func parseVersion(version string) [3]int {
	var parts [3]int
	components := strings.Split(version, ".")

	for i := 0; i < 3 && i < len(components); i++ {
		var num int
		_, _ = fmt.Sscanf(components[i], "%d", &num)
		parts[i] = num
	}

	return parts
}

// VersionCheckCache is the cached answer of the last release lookup
type VersionCheckCache struct {
	LatestVersion string    `json:"latest_version"`
	ReleaseURL    string    `json:"release_url"`
	Timestamp     time.Time `json:"timestamp"`
}

func (u *updateChecker) readCache() *VersionCheckCache {
	data, err := os.ReadFile(u.cachePath)
	if err != nil {
		return nil
	}
	var cache VersionCheckCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

func (u *updateChecker) writeCache(cache VersionCheckCache) {
	_ = os.MkdirAll(filepath.Dir(u.cachePath), 0o755)
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	_ = os.WriteFile(u.cachePath, data, 0o600)
}

// formatUpdateMessage creates a user-friendly update notification message
func formatUpdateMessage(result VersionCheckResult) string {
	return fmt.Sprintf("Update available: v%s → v%s (visit %s)",
		strings.TrimPrefix(result.CurrentVersion, "v"),
		result.LatestVersion,
		result.ReleaseURL,
	)
}

// announceUpdate checks for a newer release in the background and logs it
// if the answer arrives within a short wait.
func announceUpdate(ctx context.Context, isDebug bool) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		result := newUpdateChecker().Check(ctx, Version)
		if result.UpdateAvailable {
			logger.Info("")
			logger.Info(fmt.Sprintf("💡 %s", formatUpdateMessage(result)))
		} else if result.Error != nil && isDebug {
			logger.Debug(fmt.Sprintf("Version check failed: %v", result.Error))
		}
	}()

	select {
	case <-done:
	case <-time.After(versionCheckWait):
	}
}
