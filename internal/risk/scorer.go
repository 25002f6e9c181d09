// Package risk classifies untrusted web report submissions. The scorer is a
// pure function over its inputs: identical input always yields an identical
// assessment, and malformed input scores higher instead of failing.
package risk

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/finpanel/report-service/internal/model"
	"golang.org/x/net/publicsuffix"
)

// Sub-score caps and decision thresholds.
const (
	maxSpamScore      = 50
	maxMaliciousScore = 60
	maxEmailScore     = 20
	maxUserAgentScore = 10
	maxTotalScore     = 100

	suspiciousThreshold = 50
	autoFlagThreshold   = 80
	blockThreshold      = 100
)

// Malicious pattern family weights.
const (
	sqlInjectionWeight     = 40
	xssWeight              = 50
	commandInjectionWeight = 30
)

// Scorer assesses report submissions against a fixed keyword list and
// pattern set. A Scorer is immutable after construction and safe for
// concurrent use.
type Scorer struct {
	keywords   []string
	keywordRes []*regexp.Regexp
	disposable map[string]bool
}

// NewScorer builds a Scorer from the embedded keyword and disposable-domain
// lists.
func NewScorer() *Scorer {
	return NewScorerWithKeywords(DefaultKeywords())
}

// NewScorerWithKeywords builds a Scorer with a custom spam keyword list.
// The disposable-domain denylist always comes from the embedded data.
func NewScorerWithKeywords(keywords []string) *Scorer {
	s := &Scorer{
		keywords:   keywords,
		keywordRes: make([]*regexp.Regexp, len(keywords)),
		disposable: parseSet(disposableDomainsData),
	}
	for i, kw := range keywords {
		s.keywordRes[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return s
}

// Assess scores a submission. userAgent may be empty; absence itself is a
// weak signal. The assessment is computed once per submission and must not
// be recomputed ad hoc elsewhere.
func (s *Scorer) Assess(email, subject, description, userAgent string) model.RiskAssessment {
	raw := email + " " + subject + " " + description
	buf := strings.ToLower(raw)

	a := model.RiskAssessment{
		ContainsExternalLinks: s.detectLinks(buf),
		ForbiddenWords:        s.findForbiddenWords(buf),
	}
	a.SpamScore = s.spamScore(raw, buf, a.ForbiddenWords)
	a.MaliciousPatternScore = maliciousScore(buf)
	a.EmailRiskScore = s.emailScore(strings.ToLower(strings.TrimSpace(email)))
	a.UserAgentRiskScore = userAgentScore(userAgent)
	a.LengthRiskScore = lengthScore(subject, description)

	total := a.SpamScore + a.MaliciousPatternScore + a.EmailRiskScore +
		a.UserAgentRiskScore + a.LengthRiskScore
	if a.ContainsExternalLinks {
		total += 15
	}
	a.TotalRiskScore = clamp(total, 0, maxTotalScore)
	a.IsSuspicious = a.TotalRiskScore > suspiciousThreshold
	return a
}

// ShouldBlock reports whether a submission must be rejected outright. The
// threshold sits at the score ceiling: only stacked definitive signals
// reach it.
func ShouldBlock(a model.RiskAssessment) bool {
	return a.TotalRiskScore >= blockThreshold
}

// ShouldAutoFlagSpam reports whether an accepted submission goes straight
// to spam status instead of pending.
func ShouldAutoFlagSpam(a model.RiskAssessment) bool {
	return a.TotalRiskScore >= autoFlagThreshold
}

func (s *Scorer) detectLinks(buf string) bool {
	if shortenerPattern.MatchString(buf) {
		return true
	}
	return anyMatch(linkPatterns, buf)
}

// spamScore accumulates keyword hits, shouting signals, and URL-shortener
// presence. Shorteners and keyword diversity carry their own bounded
// contributions: either alone is weak, but together with keyword hits they
// are the strongest spam profile this heuristic sees.
func (s *Scorer) spamScore(raw, buf string, forbidden []string) int {
	score := 0
	for _, re := range s.keywordRes {
		score += 2 * len(re.FindAllStringIndex(buf, -1))
	}

	if uppercaseRatio(raw) > 0.3 {
		score += 10
	}
	if n := strings.Count(raw, "!"); n > 3 {
		score += 2 * n
	}
	if shortenerPattern.MatchString(buf) {
		score += 10
	}
	if len(forbidden) >= 3 {
		score += 15
	}
	return clamp(score, 0, maxSpamScore)
}

// findForbiddenWords returns the distinct keywords found verbatim in the
// buffer. Substring containment, not word-boundary: these are reported for
// transparency, the scoring happened in spamScore.
func (s *Scorer) findForbiddenWords(buf string) []string {
	var found []string
	for _, kw := range s.keywords {
		if strings.Contains(buf, kw) {
			found = append(found, kw)
		}
	}
	sort.Strings(found)
	return found
}

func maliciousScore(buf string) int {
	score := 0
	if anyMatch(sqlInjectionPatterns, buf) {
		score += sqlInjectionWeight
	}
	if anyMatch(xssPatterns, buf) {
		score += xssWeight
	}
	if anyMatch(commandInjectionPatterns, buf) {
		score += commandInjectionWeight
	}
	return clamp(score, 0, maxMaliciousScore)
}

func (s *Scorer) emailScore(email string) int {
	score := 0
	if !emailShapePattern.MatchString(email) {
		score += 20
	}

	local, domain, ok := strings.Cut(email, "@")
	if ok {
		if s.disposable[registrableDomain(domain)] {
			score += 15
		}
		digits := 0
		for _, r := range local {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits > 5 {
			score += 5
		}
	}
	return clamp(score, 0, maxEmailScore)
}

// registrableDomain collapses a host to its eTLD+1 so that
// mail.mailinator.com still hits the mailinator.com denylist entry.
func registrableDomain(domain string) string {
	if d, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		return d
	}
	return domain
}

func userAgentScore(ua string) int {
	score := 0
	if len(ua) < 20 {
		score += 8
	}
	if ua != "" && botUserAgentPattern.MatchString(ua) {
		score += 10
	}
	return clamp(score, 0, maxUserAgentScore)
}

// lengthScore re-checks bounds the caller already validated. The scorer
// must not assume upstream validation happened.
func lengthScore(subject, description string) int {
	score := 0
	subjLen := len([]rune(subject))
	descLen := len([]rune(description))
	if subjLen < 5 || subjLen > 200 {
		score += 3
	}
	if descLen < 10 {
		score += 5
	}
	if descLen > 5000 {
		score += 7
	}
	return score
}

func uppercaseRatio(s string) float64 {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
