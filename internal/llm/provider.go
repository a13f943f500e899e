package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNoMatch is returned when the model answered "none"
	ErrNoMatch = errors.New("no matching candidate")

	// ErrInvalidResponse is returned when the model output cannot be used
	ErrInvalidResponse = errors.New("invalid model response")
)

// CandidateRef is the (id, name) pair the model chooses from
type CandidateRef struct {
	ID   string
	Name string
}

// MatchRequest asks which candidate best substantiates a claim
type MatchRequest struct {
	ClaimText  string
	Candidates []CandidateRef
}

// MatchResponse carries the candidate id the model picked
type MatchResponse struct {
	DocumentID string
	Raw        string // Unparsed model output, kept for diagnostics
}

// RateRequest asks how well the linked documents support a claim
type RateRequest struct {
	ClaimText     string
	DocumentNames []string
}

// RateResponse carries a 1-10 rating with free-text reasoning
type RateResponse struct {
	Rating    int
	Reasoning string
}

// Matcher picks the best candidate for a claim, or returns ErrNoMatch
type Matcher interface {
	Match(ctx context.Context, req MatchRequest) (*MatchResponse, error)
}

// Rater rates how well a claim's linked documents substantiate it
type Rater interface {
	Rate(ctx context.Context, req RateRequest) (*RateResponse, error)
}

// Provider defines the interface for LLM providers
type Provider interface {
	Matcher
	Rater

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 300,
	}
}

const systemPrompt = "You are a regulatory affairs assistant that checks whether promotional claims are substantiated by reference documents. Answer exactly in the requested format."

// BuildMatchPrompt constructs the prompt for choosing a candidate document
func BuildMatchPrompt(req MatchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %q\n\nCandidate reference documents:\n", req.ClaimText)
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- id=%s name=%q\n", c.ID, c.Name)
	}
	b.WriteString("\nWhich single document most likely substantiates the claim? ")
	b.WriteString("Reply with only the id of that document, or NONE if no document is relevant.")
	return b.String()
}

// BuildRatePrompt constructs the prompt for rating linked documents
func BuildRatePrompt(req RateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %q\n\nLinked reference documents:\n", req.ClaimText)
	for _, name := range req.DocumentNames {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString("\nRate from 1 to 10 how well these documents support the claim, ")
	b.WriteString("considering relevance, credibility and recency.\n")
	b.WriteString("Reply in exactly this format:\nRATING: <1-10>\nREASONING: <one or two sentences>")
	return b.String()
}

var (
	ratingPattern    = regexp.MustCompile(`(?i)rating\s*[:=]\s*(\d{1,2})`)
	leadingIntRegexp = regexp.MustCompile(`^\s*(\d{1,2})\b`)
	reasoningPattern = regexp.MustCompile(`(?is)reasoning\s*[:=]\s*(.+)`)
)

// ParseMatch extracts a candidate id from model output.
// The id is not validated against the candidate set here.
func ParseMatch(raw string) (string, error) {
	answer := strings.TrimSpace(raw)
	answer = strings.Trim(answer, "`\"'. \n")
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty answer %q", ErrInvalidResponse, raw)
	}
	if first := strings.Trim(fields[0], "`\"'.,:"); strings.EqualFold(first, "none") {
		return "", ErrNoMatch
	}
	if idx := strings.Index(strings.ToLower(answer), "id="); idx >= 0 {
		fields = strings.Fields(answer[idx+3:])
	}
	if len(fields) != 1 {
		return "", fmt.Errorf("%w: expected a single id, got %q", ErrInvalidResponse, raw)
	}
	id := strings.Trim(fields[0], "`\"'.,")
	if id == "" {
		return "", fmt.Errorf("%w: empty id in %q", ErrInvalidResponse, raw)
	}
	return id, nil
}

// ParseRating extracts a 1-10 rating and reasoning from model output
func ParseRating(raw string) (*RateResponse, error) {
	var digits string
	if m := ratingPattern.FindStringSubmatch(raw); m != nil {
		digits = m[1]
	} else if m := leadingIntRegexp.FindStringSubmatch(raw); m != nil {
		digits = m[1]
	} else {
		return nil, fmt.Errorf("%w: no rating in %q", ErrInvalidResponse, raw)
	}

	rating, err := strconv.Atoi(digits)
	if err != nil || rating < 1 || rating > 10 {
		return nil, fmt.Errorf("%w: rating %q out of range", ErrInvalidResponse, digits)
	}

	reasoning := ""
	if m := reasoningPattern.FindStringSubmatch(raw); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}

	return &RateResponse{Rating: rating, Reasoning: reasoning}, nil
}

// ValidateMatch accepts an id only if it belongs to the candidate set
func ValidateMatch(resp *MatchResponse, candidates []CandidateRef) (string, bool) {
	if resp == nil || resp.DocumentID == "" {
		return "", false
	}
	for _, c := range candidates {
		if c.ID == resp.DocumentID {
			return c.ID, true
		}
	}
	return "", false
}
