package convstore

import (
	"regexp"
	"strings"
)

var cPathRe = regexp.MustCompile(`/c/([^/?#]+)`)

// CanonicalID implements the canonical-ID rule: a URL matching
// `/c/<hash>` yields `c_<hash>`; otherwise the caller's own id is used
// (expected to begin `tmp_`).
func CanonicalID(url, fallbackID string) string {
	if m := cPathRe.FindStringSubmatch(url); m != nil {
		return "c_" + m[1]
	}
	return fallbackID
}

func normalizeURL(url string) string {
	return strings.TrimSpace(url)
}
