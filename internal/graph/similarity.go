package graph

import (
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
)

// Similarity scores how alike two texts are, in [0, 1].
type Similarity interface {
	Score(a, b string) float64
}

// DiceSimilarity is the Sørensen-Dice coefficient over character bigrams of
// the normalized texts.
type DiceSimilarity struct {
	metric *strmetrics.SorensenDice
}

// NewDiceSimilarity returns a bigram Dice scorer.
func NewDiceSimilarity() *DiceSimilarity {
	m := strmetrics.NewSorensenDice()
	m.CaseSensitive = false
	m.NgramSize = 2
	return &DiceSimilarity{metric: m}
}

// Score implements Similarity.
func (d *DiceSimilarity) Score(a, b string) float64 {
	a, b = NormalizeText(a), NormalizeText(b)
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, d.metric)
}

// NormalizeText lowercases s, drops punctuation and symbols, and collapses
// whitespace.
func NormalizeText(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(stripped), " ")
}
