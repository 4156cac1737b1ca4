package featureswitch

import (
	"regexp"
	"strings"
)

// ConfigDir is where feature-switch files live inside a repository.
const ConfigDir = "Features/Configuration/Features"

// ConfigPath returns the repository path of a feature's config file.
func ConfigPath(featureName string) string {
	return ConfigDir + "/" + featureName + ".json"
}

// Pre-compiled regexes for branch name sanitization.
var (
	nonAlnumRegex  = regexp.MustCompile(`[^a-z0-9]+`)
	multiDashRegex = regexp.MustCompile(`-+`)
)

// Slug lowercases a feature name and collapses every non-alphanumeric run
// into a single dash.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = nonAlnumRegex.ReplaceAllString(s, "-")
	s = multiDashRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DefaultBranchName derives the branch a feature switch is created on when
// the caller does not name one explicitly.
func DefaultBranchName(featureName string) string {
	return "feature/" + Slug(featureName)
}

// IsValidBranchName performs a conservative validation for git branch names.
// It intentionally rejects ambiguous or unsafe forms before we pass them to
// the remote service.
func IsValidBranchName(s string) bool {
	if s == "" || s == "@" {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return false
	}
	if strings.Contains(s, "//") || strings.Contains(s, "..") || strings.Contains(s, "@{") {
		return false
	}
	if strings.ContainsAny(s, " ~^:?*[\\'\"`") {
		return false
	}
	for _, p := range strings.Split(s, "/") {
		if p == "" || p == "." || p == ".." {
			return false
		}
		if strings.HasPrefix(p, ".") || strings.HasSuffix(p, ".") {
			return false
		}
		if strings.HasSuffix(p, ".lock") {
			return false
		}
	}
	return true
}
