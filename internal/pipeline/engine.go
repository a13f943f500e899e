// Package pipeline orchestrates linking, auditing, literature suggestions and
// compliance checks over the repository.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/substantiate/internal/compliance"
	"github.com/ppiankov/substantiate/internal/extract"
	"github.com/ppiankov/substantiate/internal/literature"
	"github.com/ppiankov/substantiate/internal/llm"
	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/score"
	"github.com/ppiankov/substantiate/internal/storage"
	"github.com/ppiankov/substantiate/internal/worker"
)

// Batch operation names used in reports and metrics
const (
	OpRelink   = "relink"
	OpAudit    = "audit"
	OpAutoFind = "auto_find"
)

const (
	defaultMaxResults     = 10
	defaultMaxSuggestions = 3
	defaultMinRelevance   = 0.3
)

var (
	// ErrNotSuggestion is returned when accepting or rejecting a document the user uploaded
	ErrNotSuggestion = errors.New("document is not an auto-found suggestion")

	// ErrProjectMismatch is returned when a suggestion belongs to another project than the claim
	ErrProjectMismatch = errors.New("document belongs to a different project")
)

// Engine is the entry point for every scoring operation
type Engine struct {
	repo       storage.Repository
	matcher    llm.Matcher
	rater      llm.Rater
	searcher   literature.Searcher
	fetcher    score.AbstractFetcher
	compliance *compliance.Engine
	extractor  *extract.KeywordExtractor
	auditor    *score.Auditor
	ranker     *score.RelevanceRanker

	searchWaiter worker.Waiter
	itemDelay    time.Duration

	maxResults     int
	maxSuggestions int
	minRelevance   float64

	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithMatcher enables the AI fallback for linking
func WithMatcher(m llm.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithRater enables AI ratings during audits
func WithRater(r llm.Rater) Option {
	return func(e *Engine) { e.rater = r }
}

// WithSearcher enables literature suggestions
func WithSearcher(s literature.Searcher) Option {
	return func(e *Engine) { e.searcher = s }
}

// WithAbstractFetcher lets the ranker fill in missing abstracts
func WithAbstractFetcher(f score.AbstractFetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithCompliance sets the compliance rule engine
func WithCompliance(c *compliance.Engine) Option {
	return func(e *Engine) { e.compliance = c }
}

// WithItemDelay sets the minimum delay before each literature search in a batch
func WithItemDelay(d time.Duration) Option {
	return func(e *Engine) { e.itemDelay = d }
}

// WithSearchWaiter replaces the search pacing limiter
func WithSearchWaiter(w worker.Waiter) Option {
	return func(e *Engine) { e.searchWaiter = w }
}

// WithSuggestionLimits bounds how many suggestions are stored per claim
func WithSuggestionLimits(maxResults, maxSuggestions int, minRelevance float64) Option {
	return func(e *Engine) {
		if maxResults > 0 {
			e.maxResults = maxResults
		}
		if maxSuggestions > 0 {
			e.maxSuggestions = maxSuggestions
		}
		if minRelevance >= 0 {
			e.minRelevance = minRelevance
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock fixes the clock used for suggestion timestamps and recency
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over repo
func NewEngine(repo storage.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:           repo,
		extractor:      extract.NewKeywordExtractor(),
		maxResults:     defaultMaxResults,
		maxSuggestions: defaultMaxSuggestions,
		minRelevance:   defaultMinRelevance,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger = logging.OrDefault(e.logger).Named("engine")
	if e.compliance == nil {
		e.compliance = compliance.NewEngineFromCatalog(compliance.MustDefaultCatalog(),
			compliance.WithLogger(e.logger), compliance.WithMetrics(e.metrics))
	}

	e.auditor = score.NewAuditor(e.rater, e.logger, e.metrics)

	rankerOpts := []score.RankerOption{
		score.WithClock(e.now),
		score.WithRankerLogger(e.logger),
		score.WithRankerMetrics(e.metrics),
	}
	if e.fetcher != nil {
		rankerOpts = append(rankerOpts, score.WithAbstractFetcher(e.fetcher))
	}
	e.ranker = score.NewRelevanceRanker(rankerOpts...)

	return e
}

// LinkClaimToDocument asserts a link; an existing pair returns created=false
func (e *Engine) LinkClaimToDocument(ctx context.Context, claimID, documentID string) (model.Link, bool, error) {
	if _, err := e.repo.GetClaim(ctx, claimID); err != nil {
		return model.Link{}, false, err
	}
	if _, err := e.repo.GetDocument(ctx, documentID); err != nil {
		return model.Link{}, false, err
	}

	link, created, err := e.repo.CreateLink(ctx, claimID, documentID)
	if err != nil {
		return model.Link{}, false, fmt.Errorf("link claim %s: %w", claimID, err)
	}
	return link, created, nil
}

// Unlink removes a link; removing a missing link succeeds
func (e *Engine) Unlink(ctx context.Context, linkID string) error {
	return e.repo.DeleteLink(ctx, linkID)
}

// productContext returns the project's product name, or "" when unknown
func (e *Engine) productContext(ctx context.Context, projectID string) string {
	project, err := e.repo.GetProject(ctx, projectID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("project lookup failed", logging.String("project_id", projectID), logging.Err(err))
		}
		return ""
	}
	return project.ProductName
}

// LinkClaim matches a claim against its project's documents: the rule-based
// linker first, the AI fallback only when no candidate clears the threshold
func (e *Engine) LinkClaim(ctx context.Context, claimID string) (model.LinkDecision, error) {
	claim, err := e.repo.GetClaim(ctx, claimID)
	if err != nil {
		return model.LinkDecision{}, err
	}
	docs, err := e.repo.ListDocuments(ctx, claim.ProjectID)
	if err != nil {
		return model.LinkDecision{}, fmt.Errorf("list documents: %w", err)
	}
	return e.linkClaim(ctx, *claim, docs, e.productContext(ctx, claim.ProjectID))
}

func (e *Engine) linkClaim(ctx context.Context, claim model.Claim, docs []model.CandidateDocument, productContext string) (model.LinkDecision, error) {
	decision := model.LinkDecision{ClaimID: claim.ID, Method: model.LinkMethodNone}
	if len(docs) == 0 || strings.TrimSpace(claim.Text) == "" {
		return decision, nil
	}

	best, ok := score.NewLinker(productContext).Best(claim.Text, docs)
	decision.RuleScore = best.Score

	switch {
	case ok:
		decision.DocumentID = best.DocumentID
		decision.Method = model.LinkMethodRule
	default:
		if id := e.aiMatch(ctx, claim, docs); id != "" {
			decision.DocumentID = id
			decision.Method = model.LinkMethodAI
		}
	}

	if !decision.Matched() {
		return decision, nil
	}

	_, created, err := e.repo.CreateLink(ctx, claim.ID, decision.DocumentID)
	if err != nil {
		return decision, fmt.Errorf("persist link: %w", err)
	}
	decision.Created = created

	e.logger.Debug("claim linked",
		logging.String("claim_id", claim.ID),
		logging.String("document_id", decision.DocumentID),
		logging.String("method", string(decision.Method)),
		logging.Float64("rule_score", decision.RuleScore))
	return decision, nil
}

// aiMatch asks the AI fallback for a candidate. Every failure mode,
// including an id outside the candidate set, yields "".
func (e *Engine) aiMatch(ctx context.Context, claim model.Claim, docs []model.CandidateDocument) string {
	if e.matcher == nil {
		e.metrics.AIFallback(metrics.OutcomeSkipped)
		return ""
	}

	candidates := make([]llm.CandidateRef, 0, len(docs))
	for _, d := range docs {
		candidates = append(candidates, llm.CandidateRef{ID: d.ID, Name: d.DisplayName()})
	}

	start := time.Now()
	resp, err := e.matcher.Match(ctx, llm.MatchRequest{ClaimText: claim.Text, Candidates: candidates})
	e.metrics.ObserveExternalCall(metrics.CollaboratorLLM, time.Since(start))

	switch {
	case errors.Is(err, llm.ErrNoMatch):
		e.metrics.AIFallback(metrics.OutcomeNone)
		return ""
	case err != nil:
		e.metrics.AIFallback(metrics.OutcomeFailed)
		e.metrics.ExternalFailure(metrics.CollaboratorLLM)
		e.logger.Warn("AI fallback failed", logging.String("claim_id", claim.ID), logging.Err(err))
		return ""
	}

	id, ok := llm.ValidateMatch(resp, candidates)
	if !ok {
		e.metrics.AIFallback(metrics.OutcomeInvalid)
		e.logger.Warn("AI fallback returned an unknown candidate",
			logging.String("claim_id", claim.ID),
			logging.String("raw", resp.Raw))
		return ""
	}

	e.metrics.AIFallback(metrics.OutcomeMatched)
	return id
}

// RelinkProject runs LinkClaim over every claim of a project in order
func (e *Engine) RelinkProject(ctx context.Context, projectID string) (worker.BatchReport, error) {
	claims, err := e.repo.ListClaims(ctx, projectID)
	if err != nil {
		return worker.BatchReport{Operation: OpRelink}, fmt.Errorf("list claims: %w", err)
	}
	docs, err := e.repo.ListDocuments(ctx, projectID)
	if err != nil {
		return worker.BatchReport{Operation: OpRelink}, fmt.Errorf("list documents: %w", err)
	}
	productContext := e.productContext(ctx, projectID)

	tasks := make([]worker.Task, 0, len(claims))
	for _, c := range claims {
		claim := c
		tasks = append(tasks, worker.Task{
			Key: claim.ID,
			Run: func(ctx context.Context) (interface{}, error) {
				return e.linkClaim(ctx, claim, docs, productContext)
			},
		})
	}
	return e.run(ctx, worker.NewQueue(0), OpRelink, tasks), nil
}

// AuditExistingLinks recomputes and persists a claim's confidence
func (e *Engine) AuditExistingLinks(ctx context.Context, claimID string) (model.AuditOutcome, error) {
	claim, err := e.repo.GetClaim(ctx, claimID)
	if err != nil {
		return model.AuditOutcome{}, err
	}
	return e.auditClaim(ctx, *claim, e.productContext(ctx, claim.ProjectID))
}

func (e *Engine) auditClaim(ctx context.Context, claim model.Claim, productContext string) (model.AuditOutcome, error) {
	links, err := e.repo.ListLinks(ctx, claim.ID)
	if err != nil {
		return model.AuditOutcome{}, fmt.Errorf("list links: %w", err)
	}

	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.DocumentID)
	}
	linked, err := e.repo.GetDocuments(ctx, ids)
	if err != nil {
		return model.AuditOutcome{}, fmt.Errorf("load linked documents: %w", err)
	}

	outcome := e.auditor.Audit(ctx, claim, linked, productContext)
	if err := e.repo.UpdateClaimAudit(ctx, outcome); err != nil {
		return outcome, fmt.Errorf("persist audit: %w", err)
	}
	return outcome, nil
}

// AuditProject audits every claim of a project in order
func (e *Engine) AuditProject(ctx context.Context, projectID string) (worker.BatchReport, error) {
	claims, err := e.repo.ListClaims(ctx, projectID)
	if err != nil {
		return worker.BatchReport{Operation: OpAudit}, fmt.Errorf("list claims: %w", err)
	}
	productContext := e.productContext(ctx, projectID)

	tasks := make([]worker.Task, 0, len(claims))
	for _, c := range claims {
		claim := c
		tasks = append(tasks, worker.Task{
			Key: claim.ID,
			Run: func(ctx context.Context) (interface{}, error) {
				return e.auditClaim(ctx, claim, productContext)
			},
		})
	}
	return e.run(ctx, worker.NewQueue(0), OpAudit, tasks), nil
}

// FindLiteratureCandidates searches the literature for a claim and ranks the
// results. Search failures degrade to an empty list.
func (e *Engine) FindLiteratureCandidates(ctx context.Context, claimText, productContext string) ([]model.LiteratureCandidate, error) {
	candidates, err := e.findCandidates(ctx, claimText, productContext)
	if err != nil {
		e.logger.Warn("literature search failed", logging.Err(err))
		return nil, nil
	}
	return candidates, nil
}

func (e *Engine) findCandidates(ctx context.Context, claimText, productContext string) ([]model.LiteratureCandidate, error) {
	if e.searcher == nil || strings.TrimSpace(claimText) == "" {
		return nil, nil
	}

	query := literature.BuildQuery(e.extractor.Extract(claimText, productContext))
	if query == "" {
		return nil, nil
	}

	docs, err := e.searcher.Search(ctx, query, e.maxResults)
	if err != nil {
		e.metrics.ExternalFailure(metrics.CollaboratorLiterature)
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return e.ranker.Rank(ctx, claimText, productContext, docs), nil
}

// Suggestions is the per-claim value of an auto-find batch item
type Suggestions struct {
	ClaimID   string                    `json:"claim_id"`
	Documents []model.CandidateDocument `json:"documents"`
}

// AutoFindReferences searches the literature for every claim of a project,
// one claim at a time with the configured delay before each search, and
// stores the best candidates as suggestions
func (e *Engine) AutoFindReferences(ctx context.Context, projectID string) (worker.BatchReport, error) {
	claims, err := e.repo.ListClaims(ctx, projectID)
	if err != nil {
		return worker.BatchReport{Operation: OpAutoFind}, fmt.Errorf("list claims: %w", err)
	}
	productContext := e.productContext(ctx, projectID)

	tasks := make([]worker.Task, 0, len(claims))
	for _, c := range claims {
		claim := c
		tasks = append(tasks, worker.Task{
			Key: claim.ID,
			Run: func(ctx context.Context) (interface{}, error) {
				return e.suggest(ctx, projectID, claim, productContext)
			},
		})
	}

	queue := worker.NewQueue(e.itemDelay)
	if e.searchWaiter != nil {
		queue = worker.NewQueueWithWaiter(e.searchWaiter)
	}
	return e.run(ctx, queue, OpAutoFind, tasks), nil
}

func (e *Engine) suggest(ctx context.Context, projectID string, claim model.Claim, productContext string) (Suggestions, error) {
	out := Suggestions{ClaimID: claim.ID}

	ranked, err := e.findCandidates(ctx, claim.Text, productContext)
	if err != nil {
		return out, err
	}

	suggestedAt := e.now().UTC()
	for _, candidate := range ranked {
		if len(out.Documents) == e.maxSuggestions {
			break
		}
		if candidate.RelevanceScore < e.minRelevance {
			break
		}

		doc := candidate.CandidateDocument
		relevance := candidate.RelevanceScore
		doc.ProjectID = projectID
		doc.ConfidenceScore = &relevance
		doc.SuggestedAt = &suggestedAt
		if doc.Name == "" {
			doc.Name = doc.Title
		}

		saved, err := e.repo.SaveSuggestion(ctx, doc)
		if err != nil {
			return out, fmt.Errorf("save suggestion: %w", err)
		}
		out.Documents = append(out.Documents, saved)
	}
	return out, nil
}

// AcceptSuggestion marks a suggested document accepted and links it to the claim
func (e *Engine) AcceptSuggestion(ctx context.Context, claimID, documentID string) (model.Link, error) {
	claim, err := e.repo.GetClaim(ctx, claimID)
	if err != nil {
		return model.Link{}, err
	}
	doc, err := e.repo.GetDocument(ctx, documentID)
	if err != nil {
		return model.Link{}, err
	}
	if !doc.IsAutoFound {
		return model.Link{}, fmt.Errorf("accept %s: %w", documentID, ErrNotSuggestion)
	}
	if doc.ProjectID != claim.ProjectID {
		return model.Link{}, fmt.Errorf("accept %s for claim %s: %w", documentID, claimID, ErrProjectMismatch)
	}
	if doc.AcceptedAt == nil {
		if err := e.repo.AcceptSuggestion(ctx, documentID, e.now().UTC()); err != nil {
			return model.Link{}, fmt.Errorf("accept suggestion: %w", err)
		}
	}
	link, _, err := e.LinkClaimToDocument(ctx, claimID, documentID)
	return link, err
}

// RejectSuggestion deletes a suggested document. Uploaded references are never deleted here.
func (e *Engine) RejectSuggestion(ctx context.Context, documentID string) error {
	doc, err := e.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.IsAutoFound {
		return fmt.Errorf("reject %s: %w", documentID, ErrNotSuggestion)
	}
	return e.repo.DeleteDocument(ctx, documentID)
}

// RunComplianceCheck scans claims against the compliance catalog
func (e *Engine) RunComplianceCheck(ctx context.Context, claims []model.ClaimText) model.ComplianceReport {
	return e.compliance.CheckBatch(ctx, claims)
}

// run executes a batch queue, recording per-item metrics
func (e *Engine) run(ctx context.Context, queue *worker.Queue, operation string, tasks []worker.Task) worker.BatchReport {
	queue.OnItem(func(op string, err error) {
		e.metrics.BatchItem(op, err)
		if err != nil {
			e.logger.Warn("batch item failed", logging.String("operation", op), logging.Err(err))
		}
	})

	report := queue.Run(ctx, operation, tasks)
	e.metrics.ObserveBatch(operation, report.Duration)
	e.logger.Info("batch finished",
		logging.String("operation", operation),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Duration("duration", report.Duration))
	return report
}
