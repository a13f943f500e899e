package model

import "time"

// Claim represents a promotional statement extracted from a source document
type Claim struct {
	ID              string   `json:"id" yaml:"id"`
	ProjectID       string   `json:"project_id" yaml:"project_id"`
	Text            string   `json:"text" yaml:"text"`
	Page            int      `json:"page" yaml:"page"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"` // Set by the audit pass
	AuditReasoning  *string  `json:"audit_reasoning,omitempty" yaml:"audit_reasoning,omitempty"`
	NeedsReview     bool     `json:"needs_review" yaml:"needs_review"`
}

// Link is an asserted claim -> document substantiation relationship.
// The (ClaimID, DocumentID) pair is unique.
type Link struct {
	ID         string    `json:"id" yaml:"id"`
	ClaimID    string    `json:"claim_id" yaml:"claim_id"`
	DocumentID string    `json:"document_id" yaml:"document_id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// LinkMethod records which stage produced a link decision
type LinkMethod string

const (
	LinkMethodRule LinkMethod = "rule" // Word-overlap score cleared the threshold
	LinkMethodAI   LinkMethod = "ai"   // AI fallback picked a candidate
	LinkMethodNone LinkMethod = "none" // No candidate accepted
)

// LinkDecision is the outcome of matching one claim against its candidates
type LinkDecision struct {
	ClaimID    string     `json:"claim_id" yaml:"claim_id"`
	DocumentID string     `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	Method     LinkMethod `json:"method" yaml:"method"`
	RuleScore  float64    `json:"rule_score" yaml:"rule_score"`
	Created    bool       `json:"created" yaml:"created"` // False when the link already existed
}

// Matched reports whether a document was selected
func (d LinkDecision) Matched() bool {
	return d.DocumentID != ""
}

// LinkConfidence is the derived confidence of a claim's existing links
type LinkConfidence struct {
	RuleScore    float64  `json:"rule_score" yaml:"rule_score"`
	AIScore      *float64 `json:"ai_score,omitempty" yaml:"ai_score,omitempty"` // rating/10, nil when no rating was used
	BlendedScore float64  `json:"blended_score" yaml:"blended_score"`
	Reasoning    string   `json:"reasoning" yaml:"reasoning"`
}

// AuditOutcome is what the audit pass persists on a claim
type AuditOutcome struct {
	ClaimID         string         `json:"claim_id" yaml:"claim_id"`
	ConfidenceScore float64        `json:"confidence_score" yaml:"confidence_score"`
	AuditReasoning  string         `json:"audit_reasoning" yaml:"audit_reasoning"`
	NeedsReview     bool           `json:"needs_review" yaml:"needs_review"`
	Confidence      LinkConfidence `json:"confidence" yaml:"confidence"`
}

// ReviewThreshold is the confidence below which a claim needs human review
const ReviewThreshold = 0.6

// NeedsReviewFor applies the review threshold to a confidence score
func NeedsReviewFor(confidence float64) bool {
	return confidence < ReviewThreshold
}

// Clamp01 clamps v into [0, 1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
