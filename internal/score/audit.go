package score

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/substantiate/internal/llm"
	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
)

const (
	// TrustThreshold is the rule score at which no AI rating is requested
	TrustThreshold = 0.7

	ruleWeight = 0.7
	aiWeight   = 0.3

	noLinksReasoning = "no linked documents"
)

// Auditor derives a confidence score for a claim's existing links
type Auditor struct {
	rater   llm.Rater // nil disables AI ratings
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewAuditor creates an auditor; rater, logger and m may be nil
func NewAuditor(rater llm.Rater, logger logging.Logger, m *metrics.Metrics) *Auditor {
	return &Auditor{
		rater:   rater,
		logger:  logging.OrDefault(logger).Named("audit"),
		metrics: m,
	}
}

// Audit scores the claim against its linked documents.
// AI rating failures never surface; the rule score is used instead.
func (a *Auditor) Audit(ctx context.Context, claim model.Claim, linked []model.CandidateDocument, productContext string) model.AuditOutcome {
	if len(linked) == 0 {
		a.metrics.AuditRating(metrics.OutcomeSkipped)
		return outcome(claim.ID, model.LinkConfidence{Reasoning: noLinksReasoning})
	}

	linker := NewLinker(productContext)
	ruleScore := 0.0
	bestName := linked[0].DisplayName()
	for _, doc := range linked {
		if s := linker.WordOverlap(claim.Text, doc.DisplayName()); s > ruleScore {
			ruleScore = s
			bestName = doc.DisplayName()
		}
	}

	conf := model.LinkConfidence{RuleScore: ruleScore, BlendedScore: ruleScore}
	ruleText := fmt.Sprintf("rule-based overlap %.2f (best: %q)", ruleScore, bestName)

	if ruleScore >= TrustThreshold {
		a.metrics.AuditRating(metrics.OutcomeSkipped)
		conf.Reasoning = fmt.Sprintf("%s meets trust threshold %.2f; AI rating not requested", ruleText, TrustThreshold)
		return outcome(claim.ID, conf)
	}

	if a.rater == nil {
		a.metrics.AuditRating(metrics.OutcomeSkipped)
		conf.Reasoning = fmt.Sprintf("%s; AI rating unavailable (no provider configured), using rule score", ruleText)
		return outcome(claim.ID, conf)
	}

	names := make([]string, 0, len(linked))
	for _, doc := range linked {
		names = append(names, doc.DisplayName())
	}

	start := time.Now()
	rating, err := a.rater.Rate(ctx, llm.RateRequest{ClaimText: claim.Text, DocumentNames: names})
	a.metrics.ObserveExternalCall(metrics.CollaboratorLLM, time.Since(start))
	if err == nil && (rating == nil || rating.Rating < 1 || rating.Rating > 10) {
		err = llm.ErrInvalidResponse
	}
	if err != nil {
		a.metrics.AuditRating(metrics.OutcomeFailed)
		a.metrics.ExternalFailure(metrics.CollaboratorLLM)
		a.logger.Warn("AI rating failed, falling back to rule score",
			logging.String("claim_id", claim.ID),
			logging.Float64("rule_score", ruleScore),
			logging.Err(err))
		conf.Reasoning = fmt.Sprintf("%s; AI rating unavailable, using rule score", ruleText)
		return outcome(claim.ID, conf)
	}

	a.metrics.AuditRating(metrics.OutcomeRated)
	aiScore := float64(rating.Rating) / 10
	conf.AIScore = &aiScore
	conf.BlendedScore = Blend(ruleScore, rating.Rating)

	var b strings.Builder
	fmt.Fprintf(&b, "%s; AI rating %d/10", ruleText, rating.Rating)
	if rating.Reasoning != "" {
		fmt.Fprintf(&b, " (%s)", rating.Reasoning)
	}
	fmt.Fprintf(&b, "; blended %.1f*%.2f + %.1f*%.2f = %.2f", ruleWeight, ruleScore, aiWeight, aiScore, conf.BlendedScore)
	conf.Reasoning = b.String()

	return outcome(claim.ID, conf)
}

// Blend combines a rule score with a 1-10 AI rating
func Blend(ruleScore float64, rating int) float64 {
	return model.Clamp01(ruleWeight*ruleScore + aiWeight*float64(rating)/10)
}

func outcome(claimID string, conf model.LinkConfidence) model.AuditOutcome {
	return model.AuditOutcome{
		ClaimID:         claimID,
		ConfidenceScore: conf.BlendedScore,
		AuditReasoning:  conf.Reasoning,
		NeedsReview:     model.NeedsReviewFor(conf.BlendedScore),
		Confidence:      conf,
	}
}
