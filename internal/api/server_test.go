package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/pipeline"
	"github.com/ppiankov/substantiate/internal/storage"
)

type staticSearcher struct {
	docs []model.CandidateDocument
}

func (s staticSearcher) Search(_ context.Context, _ string, _ int) ([]model.CandidateDocument, error) {
	return s.docs, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryRepository) {
	t.Helper()

	repo := storage.NewMemoryRepository()
	repo.AddProject(model.Project{ID: "p1", ProductName: "Drug X"})
	repo.AddClaim(model.Claim{ID: "c1", ProjectID: "p1", Text: "Drug X reduced mortality by 28% (p<0.001)"})
	repo.AddDocument(model.CandidateDocument{ID: "d1", ProjectID: "p1", Name: "Drug X Cardiovascular Outcomes Trial"})

	m := metrics.New()
	engine := pipeline.NewEngine(repo,
		pipeline.WithLogger(logging.NewNopLogger()),
		pipeline.WithMetrics(m),
		pipeline.WithSearcher(staticSearcher{docs: []model.CandidateDocument{
			{Title: "Drug X mortality trial", Abstract: "Drug X reduced mortality by 28%.", PubMedID: "1"},
		}}),
	)

	srv := httptest.NewServer(NewServer(engine, model.ServerConfig{}, logging.NewNopLogger(), m).Handler())
	t.Cleanup(srv.Close)
	return srv, repo
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response: %d %v", resp.StatusCode, body)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

func TestServer_CreateLinkIdempotent(t *testing.T) {
	srv, repo := newTestServer(t)
	url := srv.URL + "/api/v1/claims/c1/links"

	resp, body := do(t, http.MethodPost, url, `{"document_id": "d1"}`)
	if resp.StatusCode != http.StatusCreated || body["created"] != true {
		t.Fatalf("expected 201 created, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, url, `{"document_id": "d1"}`)
	if resp.StatusCode != http.StatusOK || body["created"] != false {
		t.Errorf("expected 200 existing, got %d %v", resp.StatusCode, body)
	}

	links, _ := repo.ListLinks(context.Background(), "c1")
	if len(links) != 1 {
		t.Errorf("expected one link, got %d", len(links))
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/links/"+links[0].ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/links/"+links[0].ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected deleting a missing link to succeed, got %d", resp.StatusCode)
	}
}

func TestServer_CreateLinkErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/claims/missing/links", `{"document_id": "d1"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown claim, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/claims/c1/links", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without document_id, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/claims/c1/links", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestServer_LinkAndAuditClaim(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/claims/c1/link", "")
	if resp.StatusCode != http.StatusOK || body["method"] != "rule" || body["document_id"] != "d1" {
		t.Fatalf("unexpected link decision: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/claims/c1/audit", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, ok := body["needs_review"].(bool); !ok {
		t.Errorf("expected needs_review in audit outcome, got %v", body)
	}
}

func TestServer_ProjectBatches(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, op := range []string{"relink", "audit"} {
		resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/projects/p1/"+op, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", op, resp.StatusCode)
			continue
		}
		if body["succeeded"] != float64(1) {
			t.Errorf("%s: expected one succeeded item, got %v", op, body)
		}
	}
}

func TestServer_LiteratureSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/literature/search",
		`{"claim_text": "Drug X reduced mortality by 28%", "context": "Drug X"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	candidates, ok := body["candidates"].([]interface{})
	if !ok || len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", body)
	}
	first := candidates[0].(map[string]interface{})
	if first["relevance_score"].(float64) <= 0 {
		t.Errorf("expected positive relevance, got %v", first["relevance_score"])
	}
}

func TestServer_Suggestions(t *testing.T) {
	srv, repo := newTestServer(t)
	saved, err := repo.SaveSuggestion(context.Background(), model.CandidateDocument{ProjectID: "p1", Title: "Trial", PubMedID: "7"})
	if err != nil {
		t.Fatal(err)
	}

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/claims/c1/suggestions/"+saved.ID+"/accept", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 on accept, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/claims/c1/suggestions/d1/accept", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 accepting an uploaded document, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/suggestions/d1", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 rejecting an uploaded document, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/suggestions/"+saved.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 on reject, got %d", resp.StatusCode)
	}
}

func TestServer_ComplianceCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/compliance/check",
		`{"claims": [{"id": "c1", "text": "X is the most effective treatment available today"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	results := body["results"].([]interface{})
	first := results[0].(map[string]interface{})
	if first["risk_level"] != "high" || first["compliance_score"] != float64(70) {
		t.Errorf("unexpected result %v", first)
	}
	summary := body["summary"].(map[string]interface{})
	if summary["high"] != float64(1) || summary["total"] != float64(1) {
		t.Errorf("unexpected summary %v", summary)
	}
}

func TestServer_ComplianceCheckEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/compliance/check", `{"claims": []}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if results, ok := body["results"].([]interface{}); !ok || len(results) != 0 {
		t.Errorf("expected empty results, got %v", body["results"])
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/compliance/check", `{"claims": [{"text": "no id"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a claim without id, got %d", resp.StatusCode)
	}
}

func TestServer_AutoFind(t *testing.T) {
	srv, repo := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/projects/p1/auto-find", "")
	if resp.StatusCode != http.StatusOK || body["succeeded"] != float64(1) {
		t.Fatalf("unexpected auto-find response: %d %v", resp.StatusCode, body)
	}

	docs, _ := repo.ListDocuments(context.Background(), "p1")
	suggested := 0
	for _, d := range docs {
		if d.IsAutoFound {
			suggested++
		}
	}
	if suggested != 1 {
		t.Errorf("expected one stored suggestion, got %d", suggested)
	}
}

func TestServer_UnknownProject(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/projects/nope/relink", "")
	if resp.StatusCode != http.StatusOK || body["succeeded"] != float64(0) {
		t.Errorf("expected an empty report for a project without claims, got %d %v", resp.StatusCode, body)
	}
}
