package literature

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/substantiate/internal/cache"
	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/model"
)

const esummaryBody = `{
  "header": {"type": "esummary"},
  "result": {
    "uids": ["111", "222"],
    "111": {
      "uid": "111",
      "title": "Drug X lowers <i>blood pressure</i>: a randomized trial.",
      "fulljournalname": "The Lancet",
      "source": "Lancet",
      "pubdate": "2024 Mar 5",
      "authors": [{"name": "Smith J"}, {"name": "Doe A"}],
      "articleids": [{"idtype": "pubmed", "value": "111"}, {"idtype": "doi", "value": "10.1000/xyz"}]
    },
    "222": {
      "uid": "222",
      "title": "Long-term safety of Drug X",
      "source": "BMJ",
      "pubdate": "2019",
      "authors": [],
      "articleids": []
    }
  }
}`

const efetchBody = `<?xml version="1.0" ?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2024//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_240101.dtd">
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">111</PMID>
      <Article>
        <Abstract>
          <AbstractText Label="BACKGROUND">Hypertension is common.</AbstractText>
          <AbstractText Label="RESULTS">Systolic pressure fell by 12 mmHg (p&lt;0.001) with H<sub>2</sub>O intake controlled.</AbstractText>
        </Abstract>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">222</PMID>
      <Article></Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

const landingPage = `<!doctype html>
<html><head>
<meta property="og:description" content="Short teaser">
<meta name="citation_abstract" content="&lt;p&gt;Drug X reduced events by 28%.&lt;/p&gt;">
</head><body></body></html>`

type fakeNCBI struct {
	searches  int32
	summaries int32
	fetches   int32
	landing   int32
	robots    string
}

func (f *fakeNCBI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.robots))
	})
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.searches, 1)
		q := r.URL.Query()
		if q.Get("db") != "pubmed" || q.Get("retmode") != "json" || q.Get("tool") != toolName {
			t.Errorf("unexpected esearch params: %s", r.URL.RawQuery)
		}
		if q.Get("term") == "nothing" {
			_, _ = w.Write([]byte(`{"esearchresult": {"count": "0", "idlist": []}}`))
			return
		}
		_, _ = w.Write([]byte(`{"esearchresult": {"count": "2", "idlist": ["111", "222"]}}`))
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.summaries, 1)
		_, _ = w.Write([]byte(esummaryBody))
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.fetches, 1)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(efetchBody))
	})
	mux.HandleFunc("/10.1000/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/article/xyz", http.StatusFound)
	})
	mux.HandleFunc("/article/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.landing, 1)
		_, _ = w.Write([]byte(landingPage))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeNCBI, c cache.Cache) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := model.LiteratureConfig{
		BaseURL:       srv.URL,
		DOIFallback:   true,
		RespectRobots: true,
	}
	client := NewClient(cfg, model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "Substantiate/0.1"},
		WithCache(c),
		WithDOIResolver(srv.URL),
		WithLogger(logging.NewNopLogger()),
	)
	return client, srv
}

func TestClient_Search(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.Nop{})

	docs, err := client.Search(context.Background(), "Drug X blood pressure", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	first := docs[0]
	if first.PubMedID != "111" || first.DOI != "10.1000/xyz" || first.Year != 2024 {
		t.Errorf("unexpected first document: %+v", first)
	}
	if first.Title != "Drug X lowers blood pressure: a randomized trial." {
		t.Errorf("expected markup stripped from title, got %q", first.Title)
	}
	if first.Journal != "The Lancet" || len(first.Authors) != 2 {
		t.Errorf("unexpected journal/authors: %q %v", first.Journal, first.Authors)
	}
	want := "BACKGROUND: Hypertension is common. RESULTS: Systolic pressure fell by 12 mmHg (p<0.001) with H2O intake controlled."
	if first.Abstract != want {
		t.Errorf("unexpected abstract:\n got %q\nwant %q", first.Abstract, want)
	}

	second := docs[1]
	if second.Journal != "BMJ" || second.Year != 2019 || second.Abstract != "" {
		t.Errorf("unexpected second document: %+v", second)
	}
}

func TestClient_SearchNoResults(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.Nop{})

	docs, err := client.Search(context.Background(), "nothing", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %v", docs)
	}
	if atomic.LoadInt32(&f.summaries) != 0 {
		t.Error("esummary should not be called for an empty id list")
	}
}

func TestClient_SearchCached(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.NewMemoryCache(time.Minute, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Search(ctx, "Drug X", 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&f.searches); got != 1 {
		t.Errorf("expected one esearch call, got %d", got)
	}
}

func TestClient_SearchEmptyQuery(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.Nop{})

	docs, err := client.Search(context.Background(), "   ", 5)
	if err != nil || docs != nil {
		t.Errorf("expected empty result, got %v, %v", docs, err)
	}
}

func TestClient_SearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(model.LiteratureConfig{BaseURL: srv.URL}, model.HTTPConfig{Timeout: time.Second},
		WithLogger(logging.NewNopLogger()))

	_, err := client.Search(context.Background(), "Drug X", 5)
	if !errors.Is(err, ErrStatus) {
		t.Errorf("expected ErrStatus, got %v", err)
	}
}

func TestClient_FetchAbstractPubMed(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.NewMemoryCache(time.Minute, time.Minute))
	ctx := context.Background()

	doc := model.CandidateDocument{PubMedID: "111"}
	abstract, err := client.FetchAbstract(ctx, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(abstract, "BACKGROUND: Hypertension") {
		t.Errorf("unexpected abstract %q", abstract)
	}

	if _, err := client.FetchAbstract(ctx, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&f.fetches); got != 1 {
		t.Errorf("expected cached second lookup, got %d efetch calls", got)
	}
}

func TestClient_FetchAbstractDOIFallback(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.Nop{})

	// PMID 222 has no abstract in PubMed, so the DOI landing page is used
	abstract, err := client.FetchAbstract(context.Background(), model.CandidateDocument{PubMedID: "222", DOI: "10.1000/xyz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if abstract != "Drug X reduced events by 28%." {
		t.Errorf("expected citation_abstract content, got %q", abstract)
	}
	if atomic.LoadInt32(&f.landing) != 1 {
		t.Error("expected one landing page fetch")
	}
}

func TestClient_FetchAbstractDisallowed(t *testing.T) {
	f := &fakeNCBI{robots: "User-agent: *\nDisallow: /article/\n"}
	client, _ := newTestClient(t, f, cache.Nop{})

	_, err := client.FetchAbstract(context.Background(), model.CandidateDocument{DOI: "10.1000/xyz"})
	if !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
	if atomic.LoadInt32(&f.landing) != 0 {
		t.Error("disallowed landing page must not be fetched")
	}
}

func TestClient_FetchAbstractNoIdentifiers(t *testing.T) {
	f := &fakeNCBI{}
	client, _ := newTestClient(t, f, cache.Nop{})

	abstract, err := client.FetchAbstract(context.Background(), model.CandidateDocument{Title: "Untraceable"})
	if err != nil || abstract != "" {
		t.Errorf("expected empty abstract, got %q, %v", abstract, err)
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		keywords []string
		want     string
	}{
		{nil, ""},
		{[]string{"ZETRIVA", "Lung Health Trial", "exacerbations"}, `ZETRIVA "Lung Health Trial" exacerbations`},
		{[]string{"a1", "a2", "a3", "a4", "a5", "a6"}, "a1 a2 a3 a4 a5"},
		{[]string{" ", "drug"}, "drug"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.keywords), func(t *testing.T) {
			if got := BuildQuery(tt.keywords); got != tt.want {
				t.Errorf("BuildQuery(%v) = %q, want %q", tt.keywords, got, tt.want)
			}
		})
	}
}

func TestExtractMetaAbstract(t *testing.T) {
	page := []byte(`<html><head>
<meta name="DC.Description" content="Dublin core abstract">
<meta property="og:description" content="Open graph">
</head></html>`)

	got, err := ExtractMetaAbstract(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Dublin core abstract" {
		t.Errorf("expected dc.description to win over og:description, got %q", got)
	}

	got, _ = ExtractMetaAbstract([]byte(`<html><body>No meta</body></html>`))
	if got != "" {
		t.Errorf("expected empty abstract, got %q", got)
	}
}

func TestStripMarkup(t *testing.T) {
	tests := map[string]string{
		"plain   text\n here":                 "plain text here",
		"<p>One</p><p>Two</p>":                "One Two",
		"CO<sub>2</sub> &amp; O<sub>2</sub>": "CO2 & O2",
		"":                                    "",
	}
	for in, want := range tests {
		if got := StripMarkup(in); got != want {
			t.Errorf("StripMarkup(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseYear(t *testing.T) {
	tests := map[string]int{
		"2024 Mar 5":  2024,
		"1998":        1998,
		"Spring 2011": 2011,
		"":            0,
		"n.d.":        0,
	}
	for in, want := range tests {
		if got := parseYear(in); got != want {
			t.Errorf("parseYear(%q) = %d, want %d", in, got, want)
		}
	}
}
