package literature

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/substantiate/internal/logging"
	"github.com/ppiankov/substantiate/internal/model"
)

const toolName = "substantiate"

var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryDoc struct {
	UID             string `json:"uid"`
	Title           string `json:"title"`
	FullJournalName string `json:"fulljournalname"`
	Source          string `json:"source"`
	PubDate         string `json:"pubdate"`
	Authors         []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ArticleIDs []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID     string         `xml:"MedlineCitation>PMID"`
	Sections []abstractText `xml:"MedlineCitation>Article>Abstract>AbstractText"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

func (c *Client) eutilsURL(endpoint string, params url.Values) string {
	params.Set("db", "pubmed")
	params.Set("tool", toolName)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	return c.baseURL + "/" + endpoint + "?" + params.Encode()
}

func (c *Client) esearch(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	body, _, err := c.get(ctx, c.httpClient, c.eutilsURL("esearch.fcgi", params), "application/json")
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	return resp.Result.IDList, nil
}

// esummary returns documents in the order of ids
func (c *Client) esummary(ctx context.Context, ids []string) ([]model.CandidateDocument, error) {
	params := url.Values{}
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "json")

	body, _, err := c.get(ctx, c.httpClient, c.eutilsURL("esummary.fcgi", params), "application/json")
	if err != nil {
		return nil, fmt.Errorf("esummary: %w", err)
	}

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esummary: %w", err)
	}

	docs := make([]model.CandidateDocument, 0, len(ids))
	for _, id := range ids {
		raw, ok := resp.Result[id]
		if !ok {
			continue
		}
		var s esummaryDoc
		if err := json.Unmarshal(raw, &s); err != nil {
			c.logger.Debug("skipping malformed summary", logging.String("pmid", id), logging.Err(err))
			continue
		}
		docs = append(docs, s.toDocument(id))
	}
	return docs, nil
}

func (s esummaryDoc) toDocument(id string) model.CandidateDocument {
	doc := model.CandidateDocument{
		Title:    StripMarkup(s.Title),
		Journal:  s.FullJournalName,
		Year:     parseYear(s.PubDate),
		PubMedID: id,
	}
	if doc.Journal == "" {
		doc.Journal = s.Source
	}
	for _, a := range s.Authors {
		if a.Name != "" {
			doc.Authors = append(doc.Authors, a.Name)
		}
	}
	for _, aid := range s.ArticleIDs {
		if aid.IDType == "doi" && aid.Value != "" {
			doc.DOI = aid.Value
			break
		}
	}
	return doc
}

// efetch returns abstracts keyed by PMID; articles without one are absent
func (c *Client) efetch(ctx context.Context, ids []string) (map[string]string, error) {
	params := url.Values{}
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	body, _, err := c.get(ctx, c.httpClient, c.eutilsURL("efetch.fcgi", params), "application/xml")
	if err != nil {
		return nil, fmt.Errorf("efetch: %w", err)
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode efetch: %w", err)
	}

	out := make(map[string]string, len(set.Articles))
	for _, a := range set.Articles {
		if text := a.abstract(); text != "" {
			out[strings.TrimSpace(a.PMID)] = text
		}
	}
	return out, nil
}

// abstract joins structured sections as "LABEL: text"
func (a pubmedArticle) abstract() string {
	parts := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		text := StripMarkup(s.Inner)
		if text == "" {
			continue
		}
		if s.Label != "" {
			text = s.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

func parseYear(pubDate string) int {
	m := yearPattern.FindString(pubDate)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}
