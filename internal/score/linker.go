package score

import (
	"strings"
	"unicode"

	"github.com/ppiankov/substantiate/internal/extract"
	"github.com/ppiankov/substantiate/internal/model"
)

const (
	// MatchThreshold is the minimum word overlap for a rule-based link
	MatchThreshold = 0.3

	minWordLength = 4
)

// Linker scores claims against candidate document names by word overlap.
// Product tokens (the product name a project promotes) are kept regardless
// of length so short names like "Drug X" still contribute.
type Linker struct {
	product map[string]bool
}

// Match is the best candidate found by Best
type Match struct {
	DocumentID string
	Name       string
	Score      float64
}

// NewLinker creates a linker; productContext may be empty
func NewLinker(productContext string) *Linker {
	l := &Linker{product: make(map[string]bool)}
	kw := extract.NewKeywordExtractor()
	for _, w := range splitLower(productContext) {
		if !kw.IsStopWord(w) {
			l.product[w] = true
		}
	}
	return l
}

var plainLinker = NewLinker("")

// Tokenize returns the unique lowercase words of length > 3, in order
func Tokenize(text string) []string {
	return plainLinker.Tokenize(text)
}

// WordOverlap scores a claim against a document name without product context
func WordOverlap(claim, docName string) float64 {
	return plainLinker.WordOverlap(claim, docName)
}

// Tokenize returns unique lowercase words of length > 3 plus any product tokens
func (l *Linker) Tokenize(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range splitLower(text) {
		if seen[w] {
			continue
		}
		if len(w) < minWordLength && !l.product[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// WordOverlap returns |claim words fuzzy-matching a doc word| / max(|claim|, |doc|).
// The result is in [0, 1] and 0 when either side has no words.
func (l *Linker) WordOverlap(claim, docName string) float64 {
	claimWords := l.Tokenize(claim)
	docWords := l.Tokenize(docName)
	if len(claimWords) == 0 || len(docWords) == 0 {
		return 0
	}

	matched := 0
	for _, cw := range claimWords {
		for _, dw := range docWords {
			if fuzzyMatch(cw, dw) {
				matched++
				break
			}
		}
	}

	denominator := len(claimWords)
	if len(docWords) > denominator {
		denominator = len(docWords)
	}
	return float64(matched) / float64(denominator)
}

// Best returns the highest-scoring candidate by display name and whether it
// clears MatchThreshold. Equal scores keep the earlier candidate.
// The returned Match carries the best score even when it is rejected.
func (l *Linker) Best(claim string, candidates []model.CandidateDocument) (Match, bool) {
	best := Match{Score: -1}
	for _, c := range candidates {
		s := l.WordOverlap(claim, c.DisplayName())
		if s > best.Score {
			best = Match{DocumentID: c.ID, Name: c.DisplayName(), Score: s}
		}
	}
	if best.Score < 0 {
		return Match{}, false
	}
	return best, best.Score >= MatchThreshold
}

// fuzzyMatch treats words as equal when one contains the other.
// Short words only match exactly so "x" never matches inside "oxygen".
func fuzzyMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < minWordLength || len(b) < minWordLength {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func splitLower(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
