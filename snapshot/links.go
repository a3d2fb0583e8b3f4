package snapshot

import (
	"regexp"
	"strings"
)

var (
	markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	documentLink = regexp.MustCompile(`(?i)\.(pdf|docx?)(?:[?#].*)?$`)
	policyWords  = []string{"policy", "policies", "procedure", "guideline"}
)

// LinkStats summarizes the markdown links of a snapshot for the audit log.
type LinkStats struct {
	Found    int
	Definite []string // links to document files
	Probable []string // other links that look like policy pages
}

// AnalyzeLinks classifies every markdown link in markdown.
func AnalyzeLinks(markdown string) LinkStats {
	var stats LinkStats
	for _, m := range markdownLink.FindAllStringSubmatch(markdown, -1) {
		anchor, url := m[1], m[2]
		stats.Found++
		switch {
		case documentLink.MatchString(url):
			stats.Definite = append(stats.Definite, url)
		case mentionsPolicy(anchor) || mentionsPolicy(url):
			stats.Probable = append(stats.Probable, url)
		}
	}
	return stats
}

func mentionsPolicy(s string) bool {
	s = strings.ToLower(s)
	for _, word := range policyWords {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
