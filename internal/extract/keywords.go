package extract

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	maxContextTokens = 3
	maxGenericWords  = 12
	maxBareNumbers   = 3
)

var (
	allCapsPattern   = regexp.MustCompile(`\b[A-Z][A-Z0-9-]*[A-Z0-9]\b`)
	camelCasePattern = regexp.MustCompile(`\b[A-Za-z][a-z0-9]*[A-Z][A-Za-z0-9]*\b`)
	phrasePattern    = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)+\b`)
	percentPattern   = regexp.MustCompile(`\d+(?:\.\d+)?\s*%`)
	numberPattern    = regexp.MustCompile(`\d+(?:\.\d+)?`)

	// Drug-class suffixes (monoclonal antibodies, kinase inhibitors, ACE inhibitors, ...)
	medicalSuffixPattern = regexp.MustCompile(`(?i)\b[a-z]+(?:mab|nib|pril|sartan|statin|olol|azole|cillin|mycin|vir|tide|gliptin|prazole|parin|xaban|dipine|floxacin|lukast)\b`)
)

// Keywords is the categorized output of keyword extraction
type Keywords struct {
	DrugTokens   []string // All-caps and CamelCase tokens from the claim
	Context      []string // Product/document context tokens
	Phrases      []string // Capitalized multi-word phrases
	MedicalTerms []string // Tokens carrying a drug-class suffix
	Generic      []string // Lowercase content words
	Percentages  []string // Percentage literals, as written
	Numbers      []string // Bare numeric literals
}

// All returns every keyword in priority order, deduplicated case-insensitively
// with the first occurrence kept
func (k Keywords) All() []string {
	return dedupeFold(k.DrugTokens, k.Context, k.Phrases, k.MedicalTerms, k.Generic, k.Percentages, k.Numbers)
}

// ProductTokens returns the tokens that identify a drug or product:
// claim drug-name tokens, context tokens and drug-class suffix terms
func (k Keywords) ProductTokens() []string {
	return dedupeFold(k.DrugTokens, k.Context, k.MedicalTerms)
}

// GenericOnly returns generic words that are not already product tokens
func (k Keywords) GenericOnly() []string {
	product := make(map[string]bool)
	for _, t := range k.ProductTokens() {
		product[strings.ToLower(t)] = true
	}
	var out []string
	for _, w := range k.Generic {
		if !product[w] {
			out = append(out, w)
		}
	}
	return out
}

// KeywordExtractor turns claim text into a prioritized keyword set
type KeywordExtractor struct {
	stopWords map[string]bool
}

// NewKeywordExtractor creates a new keyword extractor
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		stopWords: defaultStopWords(),
	}
}

// Extract returns the ordered, de-duplicated keyword list for a claim
func (e *KeywordExtractor) Extract(text, context string) []string {
	return e.Analyze(text, context).All()
}

// Analyze extracts keywords by category
func (e *KeywordExtractor) Analyze(text, context string) Keywords {
	var k Keywords

	// 1. Drug-name-like tokens
	k.DrugTokens = dedupeFold(
		allCapsPattern.FindAllString(text, -1),
		camelCasePattern.FindAllString(text, -1),
	)

	// 2. Product context
	k.Context = e.contextTokens(context)

	// 3. Capitalized phrases
	k.Phrases = dedupeFold(phrasePattern.FindAllString(text, -1))

	// 4. Medical suffixes
	for _, m := range medicalSuffixPattern.FindAllString(text, -1) {
		k.MedicalTerms = append(k.MedicalTerms, strings.ToLower(m))
	}
	k.MedicalTerms = dedupeFold(k.MedicalTerms)

	// 5. Generic content words
	k.Generic = e.genericWords(text)

	// 6. Numeric literals
	k.Percentages, k.Numbers = numericLiterals(text)

	return k
}

func (e *KeywordExtractor) contextTokens(context string) []string {
	if strings.TrimSpace(context) == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, w := range splitWords(strings.ToLower(context)) {
		if len(w) <= 3 || e.stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxContextTokens {
			break
		}
	}
	return out
}

func (e *KeywordExtractor) genericWords(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range splitWords(strings.ToLower(text)) {
		w = strings.Trim(w, "-")
		if len(w) <= 3 || e.stopWords[w] || seen[w] || isNumeric(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxGenericWords {
			break
		}
	}
	return out
}

// splitWords splits on anything that is not a letter, digit or hyphen
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func numericLiterals(text string) (percentages, numbers []string) {
	percentages = dedupeFold(percentPattern.FindAllString(text, -1))

	for _, loc := range numberPattern.FindAllStringIndex(text, -1) {
		if len(numbers) == maxBareNumbers {
			break
		}
		rest := strings.TrimLeft(text[loc[1]:], " \t")
		if strings.HasPrefix(rest, "%") {
			continue
		}
		// Skip digits embedded in words like "HbA1c"
		if loc[0] > 0 && isWordByte(text[loc[0]-1]) {
			continue
		}
		numbers = append(numbers, text[loc[0]:loc[1]])
	}
	return percentages, dedupeFold(numbers)
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// dedupeFold concatenates lists, dropping case-insensitive duplicates
func dedupeFold(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}

// IsStopWord reports whether w (lowercase) is a stopword
func (e *KeywordExtractor) IsStopWord(w string) bool {
	return e.stopWords[w]
}

func defaultStopWords() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "have", "he", "in", "is", "it", "its", "of", "on", "or",
		"she", "that", "the", "they", "this", "to", "was", "were", "will",
		"with", "you", "your", "we", "our", "their", "them", "there", "these",
		"those", "been", "being", "had", "having", "do", "does", "did", "doing",
		"would", "could", "should", "may", "might", "must", "can", "cannot",
		"about", "above", "after", "again", "against", "all", "am", "any",
		"because", "before", "below", "between", "both", "but", "during",
		"each", "few", "further", "here", "how", "if", "into", "just", "more",
		"most", "no", "nor", "not", "now", "only", "other", "out", "own",
		"same", "so", "some", "such", "than", "then", "through", "too", "under",
		"until", "up", "very", "what", "when", "where", "which", "while", "who",
		"whom", "why", "also", "however", "therefore", "thus", "hence", "yet",
		"versus", "within", "without", "over", "among", "per", "via", "shown",
		"showed", "shows", "demonstrated", "compared", "patients", "study",
	}

	result := make(map[string]bool)
	for _, w := range words {
		result[w] = true
	}
	return result
}
