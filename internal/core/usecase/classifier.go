package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

// patternBonus is added per matching phrase pattern; phrase hits outweigh
// isolated keyword hits.
const patternBonus = 2

var graphKeywords = []string{
	"scheme", "schemes", "policy", "policies", "subsidy", "subsidies",
	"eligibility", "eligible", "benefit", "benefits", "government",
	"state", "available in", "grown in", "relationship", "related to",
	"pm-kisan", "pmfby", "fasal bima", "kisan credit", "kcc",
	"crop insurance", "what schemes", "which schemes", "list schemes",
}

var retrievalKeywords = []string{
	"how to", "what is", "explain", "describe", "tell me about",
	"guide", "process", "step", "method", "technique", "practice",
	"example", "detail", "information", "learn", "understand",
}

var graphPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bschemes?\b.*\bfor\b`),
	regexp.MustCompile(`\beligible\b.*\bfor\b`),
	regexp.MustCompile(`\bavailable\b.*\bin\b`),
	regexp.MustCompile(`\brelation.*\bbetween\b`),
	regexp.MustCompile(`\blist\b.*\bschemes?\b`),
}

var retrievalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhow to\b`),
	regexp.MustCompile(`\bwhat is\b`),
	regexp.MustCompile(`\bexplain\b`),
	regexp.MustCompile(`\bsteps?\b`),
}

// Classify picks the backends for a question. It is pure and always returns
// one of the three routes.
func Classify(question string) domain.Route {
	return ScoreQuestion(question).Route
}

// ScoreQuestion returns the route together with the heuristic scores behind it.
func ScoreQuestion(question string) domain.ClassificationScores {
	normalized := normalizeQuestion(question)

	graphScore := countKeywords(normalized, graphKeywords) + countPatterns(normalized, graphPatterns)*patternBonus
	retrievalScore := countKeywords(normalized, retrievalKeywords) + countPatterns(normalized, retrievalPatterns)*patternBonus

	return domain.ClassificationScores{
		Route:          decideRoute(graphScore, retrievalScore),
		GraphScore:     graphScore,
		RetrievalScore: retrievalScore,
	}
}

func decideRoute(graphScore, retrievalScore int) domain.Route {
	switch {
	case graphScore > 0 && retrievalScore > 0:
		return domain.RouteHybrid
	case graphScore > retrievalScore:
		return domain.RouteGraphOnly
	case retrievalScore > graphScore:
		return domain.RouteRetrievalOnly
	default:
		return domain.RouteHybrid
	}
}

// normalizeQuestion lower-cases and collapses whitespace so multi-word
// keywords and patterns see the same text.
func normalizeQuestion(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func countKeywords(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func countPatterns(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}
