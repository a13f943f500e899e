package model

import "time"

// CandidateDocument is a reference that may substantiate a claim: either a
// user-uploaded reference or a literature-search result
type CandidateDocument struct {
	ID        string   `json:"id" yaml:"id"`
	ProjectID string   `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Name      string   `json:"name" yaml:"name"`               // Filename or display name
	Title     string   `json:"title,omitempty" yaml:"title,omitempty"`    // Bibliographic title
	Authors   []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal   string   `json:"journal,omitempty" yaml:"journal,omitempty"`
	Year      int      `json:"year,omitempty" yaml:"year,omitempty"`     // 0 when unknown
	Abstract  string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	DOI       string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	PubMedID  string   `json:"pubmed_id,omitempty" yaml:"pubmed_id,omitempty"`

	// Suggestion lifecycle for auto-found documents
	ConfidenceScore *float64   `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"`
	IsAutoFound     bool       `json:"is_auto_found" yaml:"is_auto_found"`
	SuggestedAt     *time.Time `json:"suggested_at,omitempty" yaml:"suggested_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty" yaml:"accepted_at,omitempty"`
}

// DisplayName returns the name used for word-overlap matching.
// Uploaded references are matched by name; search results only carry a title.
func (d CandidateDocument) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Title
}

// TitleOrName returns the bibliographic title, falling back to the name
func (d CandidateDocument) TitleOrName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// LiteratureCandidate is a transient search result ranked against a claim
type LiteratureCandidate struct {
	CandidateDocument
	RelevanceScore float64 `json:"relevance_score"`
}
