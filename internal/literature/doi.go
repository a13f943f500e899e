package literature

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/substantiate/internal/logging"
)

// Meta tags carrying an abstract, best first
var abstractMetaKeys = []string{
	"citation_abstract",
	"dc.description",
	"dcterms.abstract",
	"og:description",
}

// landingPageAbstract resolves a DOI and reads the abstract from the
// publisher page's meta tags. Every hop is checked against robots.txt.
func (c *Client) landingPageAbstract(ctx context.Context, doi string) (string, error) {
	target := c.doiResolver + "/" + strings.TrimPrefix(strings.TrimSpace(doi), "https://doi.org/")

	if err := c.checkRobots(ctx, target); err != nil {
		return "", err
	}

	client := *c.httpClient
	base := c.httpClient.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if base != nil {
			if err := base(req, via); err != nil {
				return err
			}
		}
		if err := c.checkRobots(req.Context(), req.URL.String()); err != nil {
			return err
		}
		return c.limiter.Wait(req.Context(), req.URL.String())
	}

	body, finalURL, err := c.get(ctx, &client, target, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", fmt.Errorf("landing page for %s: %w", doi, err)
	}

	abstract, err := ExtractMetaAbstract(body)
	if err != nil {
		return "", fmt.Errorf("parse landing page: %w", err)
	}
	c.logger.Debug("landing page abstract",
		logging.String("doi", doi),
		logging.String("url", finalURL),
		logging.Bool("found", abstract != ""))
	return abstract, nil
}

func (c *Client) checkRobots(ctx context.Context, rawURL string) error {
	if c.robots == nil {
		return nil
	}
	allowed, delay, err := c.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}
	if delay > 0 {
		if u, err := url.Parse(rawURL); err == nil {
			c.limiter.SetHostRate(u.Host, 1/delay.Seconds(), 1)
		}
	}
	return nil
}

// ExtractMetaAbstract returns the first abstract-bearing meta tag content
// of an HTML page, stripped of markup
func ExtractMetaAbstract(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	found := make(map[string]string)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var key, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "name", "property":
					key = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			if key != "" && content != "" {
				if _, seen := found[key]; !seen {
					found[key] = content
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	for _, key := range abstractMetaKeys {
		if text := StripMarkup(found[key]); text != "" {
			return text, nil
		}
	}
	return "", nil
}

// Tags that separate words; inline tags such as <i> or <sub> do not
var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "td": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "abstracttext": true,
}

// StripMarkup removes tags from an HTML/XML fragment, unescapes entities
// and collapses whitespace
func StripMarkup(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); blockTags[string(name)] {
				b.WriteByte(' ')
			}
		}
	}
}
