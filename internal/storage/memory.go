package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/substantiate/internal/model"
)

// MemoryRepository is an in-process Repository used by the CLI and tests
type MemoryRepository struct {
	mu        sync.RWMutex
	projects  map[string]model.Project
	claims    []model.Claim
	documents []model.CandidateDocument
	links     []model.Link
	now       func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects: make(map[string]model.Project),
		now:      time.Now,
	}
}

// Fixture is the on-disk seed format for a MemoryRepository
type Fixture struct {
	Projects  []model.Project           `yaml:"projects"`
	Claims    []model.Claim             `yaml:"claims"`
	Documents []model.CandidateDocument `yaml:"documents"`
	Links     []model.Link              `yaml:"links"`
}

// LoadFixture reads a YAML fixture file into a new repository
func LoadFixture(path string) (*MemoryRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	repo := NewMemoryRepository()
	for _, p := range f.Projects {
		repo.AddProject(p)
	}
	for _, c := range f.Claims {
		repo.AddClaim(c)
	}
	for _, d := range f.Documents {
		repo.AddDocument(d)
	}
	for _, l := range f.Links {
		if _, _, err := repo.CreateLink(context.Background(), l.ClaimID, l.DocumentID); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Snapshot returns the repository contents in fixture form
func (r *MemoryRepository) Snapshot() Fixture {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var f Fixture
	for _, p := range r.projects {
		f.Projects = append(f.Projects, p)
	}
	f.Claims = append(f.Claims, r.claims...)
	f.Documents = append(f.Documents, r.documents...)
	f.Links = append(f.Links, r.links...)
	return f
}

// AddProject seeds a project
func (r *MemoryRepository) AddProject(p model.Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p
}

// AddClaim seeds a claim, replacing any claim with the same ID
func (r *MemoryRepository) AddClaim(c model.Claim) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	for i := range r.claims {
		if r.claims[i].ID == c.ID {
			r.claims[i] = c
			return
		}
	}
	r.claims = append(r.claims, c)
}

// AddDocument seeds a document, replacing any document with the same ID
func (r *MemoryRepository) AddDocument(d model.CandidateDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	for i := range r.documents {
		if r.documents[i].ID == d.ID {
			r.documents[i] = d
			return
		}
	}
	r.documents = append(r.documents, d)
}

func (r *MemoryRepository) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return &p, nil
}

func (r *MemoryRepository) GetClaim(_ context.Context, claimID string) (*model.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.claims {
		if c.ID == claimID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("claim %s: %w", claimID, ErrNotFound)
}

func (r *MemoryRepository) ListClaims(_ context.Context, projectID string) ([]model.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Claim
	for _, c := range r.claims {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpdateClaimAudit(_ context.Context, outcome model.AuditOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.claims {
		if r.claims[i].ID != outcome.ClaimID {
			continue
		}
		score := outcome.ConfidenceScore
		reasoning := outcome.AuditReasoning
		r.claims[i].ConfidenceScore = &score
		r.claims[i].AuditReasoning = &reasoning
		r.claims[i].NeedsReview = outcome.NeedsReview
		return nil
	}
	return fmt.Errorf("claim %s: %w", outcome.ClaimID, ErrNotFound)
}

func (r *MemoryRepository) GetDocument(_ context.Context, documentID string) (*model.CandidateDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.documents {
		if d.ID == documentID {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
}

func (r *MemoryRepository) GetDocuments(_ context.Context, documentIDs []string) ([]model.CandidateDocument, error) {
	want := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		want[id] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CandidateDocument
	for _, d := range r.documents {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListDocuments(_ context.Context, projectID string) ([]model.CandidateDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CandidateDocument
	for _, d := range r.documents {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeleteDocument(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.documents {
		if d.ID != documentID {
			continue
		}
		r.documents = append(r.documents[:i], r.documents[i+1:]...)
		kept := r.links[:0]
		for _, l := range r.links {
			if l.DocumentID != documentID {
				kept = append(kept, l)
			}
		}
		r.links = kept
		return nil
	}
	return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
}

func (r *MemoryRepository) ListLinks(_ context.Context, claimID string) ([]model.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Link
	for _, l := range r.links {
		if l.ClaimID == claimID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateLink(_ context.Context, claimID, documentID string) (model.Link, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.ClaimID == claimID && l.DocumentID == documentID {
			return l, false, nil
		}
	}
	link := model.Link{
		ID:         uuid.New().String(),
		ClaimID:    claimID,
		DocumentID: documentID,
		CreatedAt:  r.now().UTC(),
	}
	r.links = append(r.links, link)
	return link, true, nil
}

func (r *MemoryRepository) DeleteLink(_ context.Context, linkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.links {
		if l.ID == linkID {
			r.links = append(r.links[:i], r.links[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) SaveSuggestion(_ context.Context, doc model.CandidateDocument) (model.CandidateDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc.IsAutoFound = true
	if doc.SuggestedAt == nil {
		now := r.now().UTC()
		doc.SuggestedAt = &now
	}

	key := sourceKey(doc)
	for i, existing := range r.documents {
		if existing.ProjectID != doc.ProjectID || sourceKey(existing) != key {
			continue
		}
		existing.ConfidenceScore = doc.ConfidenceScore
		existing.SuggestedAt = doc.SuggestedAt
		if existing.Abstract == "" {
			existing.Abstract = doc.Abstract
		}
		r.documents[i] = existing
		return existing, nil
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	r.documents = append(r.documents, doc)
	return doc, nil
}

func (r *MemoryRepository) AcceptSuggestion(_ context.Context, documentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.documents {
		if r.documents[i].ID == documentID {
			t := at
			r.documents[i].AcceptedAt = &t
			return nil
		}
	}
	return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
}
