// Package updater checks GitHub for a newer shabench release.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/stormycloud/shabench/internal/version"
)

const (
	owner = "StormyCloudInc"
	repo  = "shabench"
)

// APIBase is the GitHub API root queried by Check.
var APIBase = "https://api.github.com"

// Release is the part of a GitHub release that `shabench version --check`
// prints.
type Release struct {
	TagName string `json:"tag_name"` // e.g. "v1.2.0"
	HTMLURL string `json:"html_url"`
}

// Check queries the GitHub API for the latest release and returns it
// if it is newer than the current version. Returns nil, nil if already
// up to date.
func Check(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", APIBase, owner, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "shabench/"+version.Version)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api: status %d", resp.StatusCode)
	}

	var r Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&r); err != nil {
		return nil, fmt.Errorf("parsing github response: %w", err)
	}
	if !IsNewer(r.TagName, version.Version) {
		return nil, nil
	}
	return &r, nil
}

// IsNewer returns true if remote is a newer version than local.
// Versions are expected as "vMAJOR.MINOR.PATCH".
// Dev builds never report updates.
func IsNewer(remote, local string) bool {
	if local == "dev" {
		return false
	}
	rParts := parseVersion(remote)
	lParts := parseVersion(local)
	if rParts == nil || lParts == nil {
		return false
	}
	for i := 0; i < 3; i++ {
		if rParts[i] > lParts[i] {
			return true
		}
		if rParts[i] < lParts[i] {
			return false
		}
	}
	return false
}

func parseVersion(v string) []int {
	v = strings.TrimPrefix(v, "v")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return nil
	}
	result := make([]int, 3)
	for i, p := range parts {
		if idx := strings.IndexByte(p, '-'); idx >= 0 {
			p = p[:idx]
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		result[i] = n
	}
	return result
}
