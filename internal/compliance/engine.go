// Package compliance scans claim text for regulated promotional language
// and scores each claim's regulatory risk.
package compliance

import (
	"context"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/worker"
)

const defaultWorkers = 4

// Engine applies a rule catalog to claims
type Engine struct {
	catalog *Catalog
	workers int
	logger  logging.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkers sets the concurrency of CheckBatch
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine from the embedded catalog, or from rulesFile when set
func NewEngine(rulesFile string, opts ...Option) (*Engine, error) {
	var (
		catalog *Catalog
		err     error
	)
	if rulesFile != "" {
		catalog, err = LoadCatalogFile(rulesFile)
	} else {
		catalog, err = DefaultCatalog()
	}
	if err != nil {
		return nil, err
	}
	return NewEngineFromCatalog(catalog, opts...), nil
}

// NewEngineFromCatalog creates an engine from an already parsed catalog
func NewEngineFromCatalog(catalog *Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: catalog, workers: defaultWorkers}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger).Named("compliance")
	return e
}

// Version returns the catalog version
func (e *Engine) Version() string {
	return e.catalog.Version
}

// Check scans one claim. Every match of every rule is one issue.
func (e *Engine) Check(claimID, text string) model.ComplianceResult {
	issues := make([]model.ComplianceIssue, 0)
	for i := range e.catalog.Rules {
		rule := &e.catalog.Rules[i]
		for _, match := range rule.matches(text) {
			issues = append(issues, model.ComplianceIssue{
				Type:        rule.Severity,
				Category:    rule.Category,
				RuleID:      rule.ID,
				Message:     rule.Message,
				MatchedText: strings.TrimSpace(match),
				Suggestion:  rule.Suggestion,
			})
			e.metrics.ComplianceIssue(string(rule.Severity))
		}
	}

	return model.ComplianceResult{
		ClaimID:         claimID,
		Issues:          issues,
		RiskLevel:       RiskLevel(issues),
		ComplianceScore: Score(issues),
		RulesVersion:    e.catalog.Version,
	}
}

type checkJob struct {
	engine *Engine
	index  int
	claim  model.ClaimText
}

type checkResult struct {
	index  int
	result model.ComplianceResult
}

func (r *checkResult) GetError() error { return nil }

func (j *checkJob) Execute(_ context.Context) worker.Result {
	return &checkResult{index: j.index, result: j.engine.Check(j.claim.ID, j.claim.Text)}
}

// CheckBatch scans many claims concurrently; results keep input order.
// Claims not started before ctx is cancelled are omitted.
func (e *Engine) CheckBatch(ctx context.Context, claims []model.ClaimText) model.ComplianceReport {
	if len(claims) == 0 {
		return model.ComplianceReport{Results: []model.ComplianceResult{}}
	}

	pool := worker.NewPool(ctx, e.workers)
	pool.Start()
	for i, c := range claims {
		if !pool.Submit(&checkJob{engine: e, index: i, claim: c}) {
			break
		}
	}

	raw := pool.Wait()
	sort.Slice(raw, func(i, j int) bool {
		return raw[i].(*checkResult).index < raw[j].(*checkResult).index
	})

	results := make([]model.ComplianceResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, r.(*checkResult).result)
	}

	summary := Summarize(results)
	e.logger.Info("compliance check complete",
		logging.Int("claims", summary.Total),
		logging.Int("high", summary.High),
		logging.Float64("average_score", summary.AverageScore))

	return model.ComplianceReport{Results: results, Summary: summary}
}

// RiskLevel derives the risk level from the worst issue severity
func RiskLevel(issues []model.ComplianceIssue) model.RiskLevel {
	level := model.RiskCompliant
	for _, issue := range issues {
		switch issue.Type {
		case model.IssueError:
			return model.RiskHigh
		case model.IssueWarning:
			level = model.RiskMedium
		case model.IssueInfo:
			if level == model.RiskCompliant {
				level = model.RiskLow
			}
		}
	}
	return level
}

// Score is 100 minus a fixed deduction per issue, floored at 0
func Score(issues []model.ComplianceIssue) int {
	score := 100
	for _, issue := range issues {
		score -= issue.Type.Deduction()
	}
	if score < 0 {
		return 0
	}
	return score
}

// Summarize counts results by risk level and averages their scores
func Summarize(results []model.ComplianceResult) model.ComplianceSummary {
	s := model.ComplianceSummary{Total: len(results)}
	if len(results) == 0 {
		return s
	}

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		switch r.RiskLevel {
		case model.RiskHigh:
			s.High++
		case model.RiskMedium:
			s.Medium++
		case model.RiskLow:
			s.Low++
		default:
			s.Compliant++
		}
		scores = append(scores, float64(r.ComplianceScore))
	}
	s.AverageScore = stat.Mean(scores, nil)
	return s
}
