package risk

import "regexp"

// Link detection: explicit schemes, www. prefixes, bare domains with common
// TLDs, and known URL shorteners.
var (
	linkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`https?://`),
		regexp.MustCompile(`\bwww\.[a-z0-9-]+`),
		regexp.MustCompile(`\b[a-z0-9-]+\.(?:com|net|org|info|biz|io|ru|cn|tk|xyz)\b`),
	}
	shortenerPattern = regexp.MustCompile(`\b(?:bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|buff\.ly|rebrand\.ly)\b`)
)

// Malicious pattern families. A single hit in a family adds that family's
// weight once; the combined score is clamped to [0,60].
var (
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:select|insert|update|delete|drop|union)\b[\s\S]*\b(?:from|into|table|where|values|set)\b`),
		regexp.MustCompile(`['"]\s*(?:or|and)\s+['"]?\d`),
		regexp.MustCompile(`\bor\b\s+\d+\s*=\s*\d+`),
		regexp.MustCompile(`;\s*--`),
	}
	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`<\s*script\b`),
		regexp.MustCompile(`<\s*iframe\b`),
		regexp.MustCompile(`javascript\s*:`),
		regexp.MustCompile(`\bon(?:click|load|error|mouseover|focus|submit)\s*=`),
	}
	commandInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[;&|]\s*(?:rm|cat|ls|sh|bash|nc|chmod)\b`),
		regexp.MustCompile(`\brm\s+-rf?\b`),
		regexp.MustCompile(`\b(?:wget|curl)\s+(?:https?://|-)`),
		regexp.MustCompile(`\.\./\.\./`),
		regexp.MustCompile("`[^`]+`"),
		regexp.MustCompile(`\$\([^)]*\)`),
	}
)

// Automation / scraping tool signatures in user-agent strings.
var botUserAgentPattern = regexp.MustCompile(`(?i)\b(?:bot|crawler|spider|scraper|curl|wget|python-requests|python-urllib|go-http-client|headless(?:chrome)?|phantomjs|selenium|puppeteer)\b`)

// Basic local@domain.tld shape check. Deliverability is the backend's
// problem; this only catches inputs that cannot be an address at all.
var emailShapePattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[a-z]{2,}$`)

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
