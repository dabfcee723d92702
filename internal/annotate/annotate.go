// Package annotate labels raw text with a display-language name and a
// coarse sentiment. Both functions are best-effort and never fail:
// anything the detectors cannot handle collapses to a fixed default.
package annotate

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"polychat/internal/models"
)

// DefaultLanguage is used whenever detection cannot classify the text.
const DefaultLanguage = "English"

// Polarity thresholds for the three-way sentiment split.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

// DetectLanguage returns the display name of the detected language of
// text, in English ("Spanish", not "es"). Empty or unclassifiable text
// yields DefaultLanguage.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return DefaultLanguage
	}
	info := whatlanggo.Detect(text)
	if info.Lang == -1 {
		return DefaultLanguage
	}
	code := info.Lang.Iso6391()
	if code == "" {
		// a few whatlanggo languages only carry ISO 639-3 codes
		code = info.Lang.Iso6393()
	}
	tag, err := language.Parse(code)
	if err != nil {
		return DefaultLanguage
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return DefaultLanguage
	}
	return name
}

// ScoreSentiment maps the VADER compound polarity of text onto the
// closed sentiment set. Polarity above 0.1 is positive, below -0.1
// negative, everything else (including empty text) neutral.
func ScoreSentiment(text string) models.Sentiment {
	if strings.TrimSpace(text) == "" {
		return models.SentimentNeutral
	}
	parsed := sentitext.Parse(text, lexicon.DefaultLexicon)
	polarity := sentitext.PolarityScore(parsed).Compound
	switch {
	case polarity > positiveThreshold:
		return models.SentimentPositive
	case polarity < negativeThreshold:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
