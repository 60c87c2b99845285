package main

import (
	"fmt"
	"regexp"
	"strings"
)

var repoURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts owner and repository name from a GitHub URL.
// Accepts https URLs with or without scheme and a trailing .git, plus the
// bare owner/repo shorthand.
func ParseRepoURL(url string) (owner, name string, err error) {
	url = strings.TrimSpace(url)

	if m := repoURLPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}

	// Bare owner/repo shorthand. GitHub owner names never contain dots,
	// so a dotted first segment is a host, not an owner.
	parts := strings.Split(url, "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" &&
		!strings.ContainsAny(parts[0], ".:") {
		return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
	}

	return "", "", fmt.Errorf("invalid GitHub repository URL: %q", url)
}
