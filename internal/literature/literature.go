// Package literature searches PubMed for references that may substantiate
// a claim and retrieves their abstracts, falling back to publisher landing
// pages reached through the DOI resolver.
package literature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/substantiate/internal/cache"
	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/metrics"
	"github.com/ppiankov/substantiate/internal/model"
	"github.com/ppiankov/substantiate/internal/util"
	"github.com/ppiankov/substantiate/internal/worker"
)

var (
	// ErrDisallowed is returned when robots.txt forbids fetching a landing page
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrStatus is returned for non-2xx responses
	ErrStatus = errors.New("unexpected status")
)

const (
	defaultDOIResolver = "https://doi.org"
	maxQueryTerms      = 5
	maxResponseBytes   = 4 << 20
	maxRedirects       = 5
	searchTTL          = 6 * time.Hour
	abstractTTL        = 30 * 24 * time.Hour
)

// Searcher finds candidate documents for a free-text query
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.CandidateDocument, error)
}

// Client talks to the NCBI E-utilities and DOI landing pages
type Client struct {
	baseURL     string
	apiKey      string
	email       string
	userAgent   string
	doiResolver string
	doiFallback bool

	httpClient *http.Client
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
	cache      cache.Cache
	logger     logging.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithCache stores search results and abstracts in c
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithMetrics records external call timings and failures
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithHTTPClient replaces the outbound client
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) { cl.httpClient = hc }
}

// WithDOIResolver points DOI lookups somewhere other than doi.org
func WithDOIResolver(base string) Option {
	return func(cl *Client) { cl.doiResolver = strings.TrimRight(base, "/") }
}

// NewClient creates a literature client from configuration
func NewClient(cfg model.LiteratureConfig, httpCfg model.HTTPConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		email:       cfg.Email,
		userAgent:   httpCfg.UserAgent,
		doiResolver: defaultDOIResolver,
		doiFallback: cfg.DOIFallback,
		limiter:     worker.NewLimiter(cfg.HostRate, cfg.HostBurst),
		cache:       cache.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = util.NewHTTPClient(httpCfg, maxRedirects)
	}
	if cfg.RespectRobots {
		c.robots = util.NewRobotsChecker(c.httpClient, c.userAgent, c.cache)
	}
	c.logger = logging.OrDefault(c.logger).Named("literature")
	return c
}

// BuildQuery turns prioritized keywords into a PubMed term. PubMed ANDs
// bare terms, so only the highest priority keywords are used.
func BuildQuery(keywords []string) string {
	terms := make([]string, 0, maxQueryTerms)
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = strconv.Quote(k)
		}
		terms = append(terms, k)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " ")
}

// Search runs esearch + esummary and fills abstracts with one batched efetch.
// Abstracts missing after that are left for FetchAbstract.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]model.CandidateDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	key := cache.Key("search", query, strconv.Itoa(maxResults))
	if data, ok := c.cache.Get(ctx, key); ok {
		var docs []model.CandidateDocument
		if err := json.Unmarshal(data, &docs); err == nil {
			c.logger.Debug("search cache hit", logging.String("query", query))
			return docs, nil
		}
	}

	start := time.Now()
	docs, err := c.search(ctx, query, maxResults)
	c.metrics.ObserveExternalCall(metrics.CollaboratorLiterature, time.Since(start))
	if err != nil {
		c.metrics.ExternalFailure(metrics.CollaboratorLiterature)
		return nil, err
	}

	if data, err := json.Marshal(docs); err == nil {
		_ = c.cache.Set(ctx, key, data, searchTTL)
	}
	return docs, nil
}

func (c *Client) search(ctx context.Context, query string, maxResults int) ([]model.CandidateDocument, error) {
	ids, err := c.esearch(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	docs, err := c.esummary(ctx, ids)
	if err != nil {
		return nil, err
	}

	abstracts, err := c.efetch(ctx, ids)
	if err != nil {
		c.logger.Warn("batch abstract fetch failed", logging.Int("ids", len(ids)), logging.Err(err))
		return docs, nil
	}
	for i := range docs {
		if a := abstracts[docs[i].PubMedID]; a != "" {
			docs[i].Abstract = a
			_ = c.cache.Set(ctx, abstractKey(docs[i]), []byte(a), abstractTTL)
		}
	}
	return docs, nil
}

// FetchAbstract retrieves the abstract of one document: PubMed first,
// then the DOI landing page when enabled. A document without any abstract
// yields an empty string and no error.
func (c *Client) FetchAbstract(ctx context.Context, doc model.CandidateDocument) (string, error) {
	if doc.PubMedID == "" && doc.DOI == "" {
		return "", nil
	}

	key := abstractKey(doc)
	if data, ok := c.cache.Get(ctx, key); ok {
		return string(data), nil
	}

	var abstract string
	if doc.PubMedID != "" {
		abstracts, err := c.efetch(ctx, []string{doc.PubMedID})
		if err != nil {
			return "", err
		}
		abstract = abstracts[doc.PubMedID]
	}

	if abstract == "" && doc.DOI != "" && c.doiFallback {
		a, err := c.landingPageAbstract(ctx, doc.DOI)
		if err != nil {
			return "", err
		}
		abstract = a
	}

	if abstract != "" {
		_ = c.cache.Set(ctx, key, []byte(abstract), abstractTTL)
	}
	return abstract, nil
}

func abstractKey(doc model.CandidateDocument) string {
	if doc.PubMedID != "" {
		return cache.Key("abstract", "pmid", doc.PubMedID)
	}
	return cache.Key("abstract", "doi", strings.ToLower(doc.DOI))
}

// get performs a rate-limited GET and returns the body, capped at maxResponseBytes
func (c *Client) get(ctx context.Context, client *http.Client, rawURL, accept string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return nil, "", fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, resp.Request.URL.Host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return body, resp.Request.URL.String(), nil
}
