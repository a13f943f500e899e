// Package storage persists claims, candidate documents, links and the
// suggestion lifecycle of auto-found references.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ppiankov/substantiate/internal/model"
)

// ErrNotFound is returned when a project, claim or document does not exist
var ErrNotFound = errors.New("not found")

// Repository is the persistence collaborator of the engine
type Repository interface {
	GetProject(ctx context.Context, projectID string) (*model.Project, error)

	GetClaim(ctx context.Context, claimID string) (*model.Claim, error)
	ListClaims(ctx context.Context, projectID string) ([]model.Claim, error)
	UpdateClaimAudit(ctx context.Context, outcome model.AuditOutcome) error

	GetDocument(ctx context.Context, documentID string) (*model.CandidateDocument, error)
	GetDocuments(ctx context.Context, documentIDs []string) ([]model.CandidateDocument, error)
	ListDocuments(ctx context.Context, projectID string) ([]model.CandidateDocument, error)
	DeleteDocument(ctx context.Context, documentID string) error

	ListLinks(ctx context.Context, claimID string) ([]model.Link, error)
	// CreateLink is idempotent: an existing (claim, document) pair is returned with created=false
	CreateLink(ctx context.Context, claimID, documentID string) (model.Link, bool, error)
	// DeleteLink removes a link; a missing link is not an error
	DeleteLink(ctx context.Context, linkID string) error

	// SaveSuggestion inserts or refreshes an auto-found document, keyed by
	// project and bibliographic identity, and returns the stored row
	SaveSuggestion(ctx context.Context, doc model.CandidateDocument) (model.CandidateDocument, error)
	AcceptSuggestion(ctx context.Context, documentID string, at time.Time) error
}

// sourceKey identifies a bibliographic record across repeated searches
func sourceKey(doc model.CandidateDocument) string {
	switch {
	case doc.PubMedID != "":
		return "pmid:" + doc.PubMedID
	case doc.DOI != "":
		return "doi:" + strings.ToLower(doc.DOI)
	default:
		return "title:" + strings.ToLower(strings.Join(strings.Fields(doc.TitleOrName()), " "))
	}
}
