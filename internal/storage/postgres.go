package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ppiankov/substantiate/internal/model"
)

//go:embed schema.sql
var schema string

const documentColumns = `id, project_id, name, title, authors, journal, year, abstract, doi, pubmed_id,
	confidence_score, is_auto_found, suggested_at, accepted_at`

const claimColumns = `id, project_id, text, page, confidence_score, audit_reasoning, needs_review`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// OpenPostgres opens and pings a database using the lib/pq driver
func OpenPostgres(ctx context.Context, cfg model.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables if they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (model.Claim, error) {
	var (
		c          model.Claim
		confidence sql.NullFloat64
		reasoning  sql.NullString
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Text, &c.Page, &confidence, &reasoning, &c.NeedsReview); err != nil {
		return c, err
	}
	if confidence.Valid {
		v := confidence.Float64
		c.ConfidenceScore = &v
	}
	if reasoning.Valid {
		v := reasoning.String
		c.AuditReasoning = &v
	}
	return c, nil
}

func scanDocument(row rowScanner) (model.CandidateDocument, error) {
	var (
		d          model.CandidateDocument
		confidence sql.NullFloat64
		suggested  sql.NullTime
		accepted   sql.NullTime
	)
	err := row.Scan(&d.ID, &d.ProjectID, &d.Name, &d.Title, pq.Array(&d.Authors), &d.Journal, &d.Year,
		&d.Abstract, &d.DOI, &d.PubMedID, &confidence, &d.IsAutoFound, &suggested, &accepted)
	if err != nil {
		return d, err
	}
	if confidence.Valid {
		v := confidence.Float64
		d.ConfidenceScore = &v
	}
	if suggested.Valid {
		t := suggested.Time
		d.SuggestedAt = &t
	}
	if accepted.Valid {
		t := accepted.Time
		d.AcceptedAt = &t
	}
	return d, nil
}

// GetProject retrieves a project by ID
func (r *PostgresRepository) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, product_name FROM projects WHERE id = $1`, projectID,
	).Scan(&p.ID, &p.Name, &p.ProductName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetClaim retrieves a claim by ID
func (r *PostgresRepository) GetClaim(ctx context.Context, claimID string) (*model.Claim, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, claimID)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("claim %s: %w", claimID, ErrNotFound)
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return &c, nil
}

// ListClaims returns a project's claims in page order
func (r *PostgresRepository) ListClaims(ctx context.Context, projectID string) ([]model.Claim, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE project_id = $1 ORDER BY page, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// UpdateClaimAudit persists the outcome of an audit pass
func (r *PostgresRepository) UpdateClaimAudit(ctx context.Context, outcome model.AuditOutcome) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE claims SET confidence_score = $2, audit_reasoning = $3, needs_review = $4 WHERE id = $1`,
		outcome.ClaimID, outcome.ConfidenceScore, outcome.AuditReasoning, outcome.NeedsReview)
	if err != nil {
		return fmt.Errorf("update claim audit: %w", err)
	}
	return requireRow(res, "claim", outcome.ClaimID)
}

// GetDocument retrieves a candidate document by ID
func (r *PostgresRepository) GetDocument(ctx context.Context, documentID string) (*model.CandidateDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

// GetDocuments retrieves documents by ID; unknown IDs are skipped
func (r *PostgresRepository) GetDocuments(ctx context.Context, documentIDs []string) ([]model.CandidateDocument, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	return r.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ANY($1) ORDER BY created_at, id`,
		pq.Array(documentIDs))
}

// ListDocuments returns a project's documents in creation order
func (r *PostgresRepository) ListDocuments(ctx context.Context, projectID string) ([]model.CandidateDocument, error) {
	return r.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 ORDER BY created_at, id`,
		projectID)
}

func (r *PostgresRepository) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]model.CandidateDocument, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.CandidateDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and, by cascade, its links
func (r *PostgresRepository) DeleteDocument(ctx context.Context, documentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(res, "document", documentID)
}

// ListLinks returns the links of a claim
func (r *PostgresRepository) ListLinks(ctx context.Context, claimID string) ([]model.Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, claim_id, document_id, created_at FROM links WHERE claim_id = $1 ORDER BY created_at, id`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.Link
	for rows.Next() {
		var l model.Link
		if err := rows.Scan(&l.ID, &l.ClaimID, &l.DocumentID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *PostgresRepository) findLink(ctx context.Context, claimID, documentID string) (model.Link, error) {
	var l model.Link
	err := r.db.QueryRowContext(ctx,
		`SELECT id, claim_id, document_id, created_at FROM links WHERE claim_id = $1 AND document_id = $2`,
		claimID, documentID,
	).Scan(&l.ID, &l.ClaimID, &l.DocumentID, &l.CreatedAt)
	return l, err
}

// CreateLink inserts a link unless the pair already exists
func (r *PostgresRepository) CreateLink(ctx context.Context, claimID, documentID string) (model.Link, bool, error) {
	existing, err := r.findLink(ctx, claimID, documentID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Link{}, false, fmt.Errorf("check link: %w", err)
	}

	link := model.Link{
		ID:         uuid.New().String(),
		ClaimID:    claimID,
		DocumentID: documentID,
		CreatedAt:  r.now().UTC(),
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO links (id, claim_id, document_id, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (claim_id, document_id) DO NOTHING`,
		link.ID, link.ClaimID, link.DocumentID, link.CreatedAt)
	if err != nil {
		return model.Link{}, false, fmt.Errorf("create link: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// A concurrent caller inserted the pair between check and insert
		existing, err := r.findLink(ctx, claimID, documentID)
		if err != nil {
			return model.Link{}, false, fmt.Errorf("reload link: %w", err)
		}
		return existing, false, nil
	}
	return link, true, nil
}

// DeleteLink removes a link; deleting a missing link is a no-op
func (r *PostgresRepository) DeleteLink(ctx context.Context, linkID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1`, linkID); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// SaveSuggestion upserts an auto-found document by (project, source key)
func (r *PostgresRepository) SaveSuggestion(ctx context.Context, doc model.CandidateDocument) (model.CandidateDocument, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.IsAutoFound = true
	if doc.SuggestedAt == nil {
		now := r.now().UTC()
		doc.SuggestedAt = &now
	}

	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO documents (id, project_id, name, title, authors, journal, year, abstract, doi, pubmed_id,
			source_key, confidence_score, is_auto_found, suggested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, $13)
		 ON CONFLICT (project_id, source_key) DO UPDATE
		 SET confidence_score = EXCLUDED.confidence_score,
		     suggested_at = EXCLUDED.suggested_at,
		     abstract = CASE WHEN documents.abstract = '' THEN EXCLUDED.abstract ELSE documents.abstract END
		 RETURNING id`,
		doc.ID, doc.ProjectID, doc.Name, doc.Title, pq.Array(doc.Authors), doc.Journal, doc.Year,
		doc.Abstract, doc.DOI, doc.PubMedID, sourceKey(doc), doc.ConfidenceScore, *doc.SuggestedAt,
	).Scan(&id)
	if err != nil {
		return model.CandidateDocument{}, fmt.Errorf("save suggestion: %w", err)
	}
	doc.ID = id
	return doc, nil
}

// AcceptSuggestion stamps a suggestion as accepted
func (r *PostgresRepository) AcceptSuggestion(ctx context.Context, documentID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET accepted_at = $2 WHERE id = $1`, documentID, at)
	if err != nil {
		return fmt.Errorf("accept suggestion: %w", err)
	}
	return requireRow(res, "document", documentID)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
