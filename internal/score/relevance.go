package score

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/substantiate/internal/extract"
	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
)

// Relevance weights
const (
	productTitleWeight    = 0.4
	productAbstractWeight = 0.2
	percentWeight         = 0.15
	statTermBonus         = 0.1
	genericTitleWeight    = 0.15
	genericAbstractWeight = 0.08
	highRatioBonus        = 0.2
	lowRatioBonus         = 0.1
	noAbstractFactor      = 0.7
)

var statisticalTerms = []string{
	"randomized", "randomised", "trial", "placebo", "efficacy", "adverse",
	"outcome", "double-blind", "meta-analysis", "significant", "hazard",
	"cohort", "endpoint", "mortality", "confidence interval",
}

// AbstractFetcher retrieves an abstract for a candidate that has none
type AbstractFetcher interface {
	FetchAbstract(ctx context.Context, doc model.CandidateDocument) (string, error)
}

// RelevanceBreakdown is the transparent decomposition of a relevance score
type RelevanceBreakdown struct {
	ProductTitleHits    int     `json:"product_title_hits"`
	ProductAbstractHits int     `json:"product_abstract_hits"`
	PercentHits         int     `json:"percent_hits"`
	StatisticalTerm     bool    `json:"statistical_term"`
	GenericTitleHits    int     `json:"generic_title_hits"`
	GenericAbstractHits int     `json:"generic_abstract_hits"`
	MatchRatio          float64 `json:"match_ratio"`
	RatioBonus          float64 `json:"ratio_bonus"`
	NoAbstractPenalty   bool    `json:"no_abstract_penalty"`
	RecencyBonus        float64 `json:"recency_bonus"`
	Raw                 float64 `json:"raw"` // Before the 1.0 cap
	Score               float64 `json:"score"`
}

// RelevanceRanker orders literature candidates by relevance to a claim
type RelevanceRanker struct {
	extractor *extract.KeywordExtractor
	fetcher   AbstractFetcher
	now       func() time.Time
	logger    logging.Logger
	metrics   *metrics.Metrics
}

// RankerOption configures a RelevanceRanker
type RankerOption func(*RelevanceRanker)

// WithAbstractFetcher enables lazy abstract retrieval
func WithAbstractFetcher(f AbstractFetcher) RankerOption {
	return func(r *RelevanceRanker) { r.fetcher = f }
}

// WithClock fixes the current time used for recency
func WithClock(now func() time.Time) RankerOption {
	return func(r *RelevanceRanker) { r.now = now }
}

// WithRankerLogger sets the logger
func WithRankerLogger(l logging.Logger) RankerOption {
	return func(r *RelevanceRanker) { r.logger = l }
}

// WithRankerMetrics sets the metrics sink
func WithRankerMetrics(m *metrics.Metrics) RankerOption {
	return func(r *RelevanceRanker) { r.metrics = m }
}

// NewRelevanceRanker creates a ranker
func NewRelevanceRanker(opts ...RankerOption) *RelevanceRanker {
	r := &RelevanceRanker{
		extractor: extract.NewKeywordExtractor(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDefault(r.logger).Named("relevance")
	return r
}

// Rank scores every candidate and returns them sorted by descending
// relevance. Ties keep retrieval order.
func (r *RelevanceRanker) Rank(ctx context.Context, claimText, productContext string, candidates []model.CandidateDocument) []model.LiteratureCandidate {
	if len(candidates) == 0 {
		return nil
	}

	keywords := r.extractor.Analyze(claimText, productContext)
	out := make([]model.LiteratureCandidate, 0, len(candidates))

	for _, doc := range candidates {
		if strings.TrimSpace(doc.Abstract) == "" {
			doc.Abstract = r.fetchAbstract(ctx, doc)
		}
		b := r.Score(keywords, claimText, doc)
		out = append(out, model.LiteratureCandidate{CandidateDocument: doc, RelevanceScore: b.Score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})

	r.metrics.Ranked(len(out))
	return out
}

func (r *RelevanceRanker) fetchAbstract(ctx context.Context, doc model.CandidateDocument) string {
	if r.fetcher == nil || ctx.Err() != nil {
		return ""
	}
	start := time.Now()
	abstract, err := r.fetcher.FetchAbstract(ctx, doc)
	r.metrics.ObserveExternalCall(metrics.CollaboratorAbstract, time.Since(start))
	if err != nil {
		r.metrics.ExternalFailure(metrics.CollaboratorAbstract)
		r.logger.Warn("abstract fetch failed",
			logging.String("pubmed_id", doc.PubMedID),
			logging.String("doi", doc.DOI),
			logging.Err(err))
		return ""
	}
	return strings.TrimSpace(abstract)
}

// Score computes the relevance of one candidate without any I/O.
// A candidate with an empty abstract takes the no-abstract penalty.
func (r *RelevanceRanker) Score(keywords extract.Keywords, claimText string, doc model.CandidateDocument) RelevanceBreakdown {
	var b RelevanceBreakdown

	title := strings.ToLower(doc.TitleOrName())
	abstract := strings.ToLower(doc.Abstract)
	hasAbstract := strings.TrimSpace(abstract) != ""
	score := 0.0

	for _, tok := range keywords.ProductTokens() {
		t := strings.ToLower(tok)
		if containsTerm(title, t) {
			b.ProductTitleHits++
			score += productTitleWeight
		}
		if hasAbstract && containsTerm(abstract, t) {
			b.ProductAbstractHits++
			score += productAbstractWeight
		}
	}

	for _, pct := range keywords.Percentages {
		if strings.Contains(title, pct) || (hasAbstract && strings.Contains(abstract, pct)) {
			b.PercentHits++
			score += percentWeight
		}
	}

	claim := strings.ToLower(claimText)
	for _, term := range statisticalTerms {
		if strings.Contains(claim, term) && strings.Contains(title, term) {
			b.StatisticalTerm = true
			score += statTermBonus
			break
		}
	}

	generic := keywords.GenericOnly()
	matched := 0
	for _, w := range generic {
		inTitle := containsTerm(title, w)
		inAbstract := hasAbstract && containsTerm(abstract, w)
		if inTitle {
			b.GenericTitleHits++
			score += genericTitleWeight
		}
		if inAbstract {
			b.GenericAbstractHits++
			score += genericAbstractWeight
		}
		if inTitle || inAbstract {
			matched++
		}
	}

	if len(generic) > 0 {
		b.MatchRatio = float64(matched) / float64(len(generic))
		switch {
		case b.MatchRatio > 0.5:
			b.RatioBonus = highRatioBonus
		case b.MatchRatio > 0.3:
			b.RatioBonus = lowRatioBonus
		}
		score += b.RatioBonus
	}

	if !hasAbstract {
		b.NoAbstractPenalty = true
		score *= noAbstractFactor
	}

	b.RecencyBonus = recencyBonus(r.now().Year(), doc.Year)
	score += b.RecencyBonus

	b.Raw = score
	b.Score = math.Min(score, 1.0)
	return b
}

// recencyBonus rewards recent publications; an unknown year earns nothing
func recencyBonus(currentYear, year int) float64 {
	if year <= 0 {
		return 0
	}
	age := currentYear - year
	switch {
	case age <= 3:
		return 0.15
	case age <= 5:
		return 0.10
	case age <= 10:
		return 0.05
	default:
		return 0
	}
}

// containsTerm matches short terms on word boundaries and longer ones as substrings
func containsTerm(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	if len(needle) > 3 {
		return strings.Contains(haystack, needle)
	}
	return wordBoundaryPattern(needle).MatchString(haystack)
}

// boundaryPatterns caches compiled short-term patterns by term
var boundaryPatterns sync.Map

func wordBoundaryPattern(term string) *regexp.Regexp {
	if re, ok := boundaryPatterns.Load(term); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(^|[^\pL\pN])` + regexp.QuoteMeta(term) + `($|[^\pL\pN])`)
	actual, _ := boundaryPatterns.LoadOrStore(term, re)
	return actual.(*regexp.Regexp)
}
