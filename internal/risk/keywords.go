package risk

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed spam_keywords.txt
var spamKeywordsData string

//go:embed disposable_domains.txt
var disposableDomainsData string

// parseList parses a newline-separated word list, skipping blanks and
// comment lines.
func parseList(data string) []string {
	var out []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToLower(line))
	}
	return out
}

func parseSet(data string) map[string]bool {
	m := make(map[string]bool)
	for _, entry := range parseList(data) {
		m[entry] = true
	}
	return m
}

// DefaultKeywords returns the embedded spam keyword list.
func DefaultKeywords() []string {
	return parseList(spamKeywordsData)
}

// LoadKeywordsFile reads a spam keyword list from disk in the same format
// as the embedded one.
func LoadKeywordsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	kws := parseList(string(data))
	if len(kws) == 0 {
		return nil, fmt.Errorf("keywords file %s contains no entries", path)
	}
	return kws, nil
}
