package usecase

import (
	"regexp"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

type lexiconEntry struct {
	pattern *regexp.Regexp
	display string
}

func wordPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
}

func lexicon(pairs ...string) []lexiconEntry {
	out := make([]lexiconEntry, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, lexiconEntry{pattern: wordPattern(pairs[i]), display: pairs[i+1]})
	}
	return out
}

var (
	cropLexicon = lexicon(
		"rice", "Rice",
		"wheat", "Wheat",
		"cotton", "Cotton",
		"sugarcane", "Sugarcane",
		"maize", "Maize",
		"barley", "Barley",
		"soybean", "Soybean",
		"mustard", "Mustard",
	)
	schemeLexicon = lexicon(
		"pm-kisan", "PM-KISAN",
		"pmfby", "PMFBY",
		"fasal bima", "Fasal Bima",
		"kisan credit card", "Kisan Credit Card",
		"kcc", "KCC",
	)
	stateLexicon = lexicon(
		"punjab", "Punjab",
		"haryana", "Haryana",
		"uttar pradesh", "Uttar Pradesh",
		"up", "UP",
		"maharashtra", "Maharashtra",
		"karnataka", "Karnataka",
		"tamil nadu", "Tamil Nadu",
	)
)

// ExtractEntities finds known crops, schemes and states mentioned in a question.
func ExtractEntities(question string) domain.Entities {
	text := normalizeQuestion(question)
	return domain.Entities{
		Crops:   matchLexicon(text, cropLexicon),
		Schemes: matchLexicon(text, schemeLexicon),
		States:  matchLexicon(text, stateLexicon),
	}
}

func matchLexicon(text string, entries []lexiconEntry) []string {
	out := []string{}
	for _, e := range entries {
		if e.pattern.MatchString(text) {
			out = append(out, e.display)
		}
	}
	return out
}
