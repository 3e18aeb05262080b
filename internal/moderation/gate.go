// Package moderation classifies chat messages through an external content
// analyzer and serializes those calls behind a bounded FIFO queue.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Gate is a single-call classification abstraction.
type Gate interface {
	// Classify reports whether text is allowed. A transport or API failure
	// is returned as an error; callers treat errors as a denial.
	Classify(ctx context.Context, text string) (bool, error)
}

// Per-category score cutoffs. Severe harms are blocked aggressively while
// mild incivility is tolerated; this asymmetry is intentional policy.
const (
	thresholdIdentityAttack   = 0.70
	thresholdSevereToxicity   = 0.75
	thresholdThreat           = 0.75
	thresholdToxicity         = 0.85
	thresholdSexuallyExplicit = 0.85
	thresholdFlirtation       = 0.85
	thresholdInsult           = 0.90
	thresholdProfanity        = 0.95
)

// HTTPGate calls a Perspective-style comment analyzer endpoint.
type HTTPGate struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGate creates a gate against the given analyzer endpoint.
func NewHTTPGate(endpoint, apiKey string) *HTTPGate {
	return &HTTPGate{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type analyzeRequest struct {
	Comment struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"comment"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	Languages           []string            `json:"languages"`
	DoNotStore          bool                `json:"doNotStore"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Classify submits text to the analyzer and applies the policy cutoffs.
func (g *HTTPGate) Classify(ctx context.Context, text string) (bool, error) {
	var reqBody analyzeRequest
	reqBody.Comment.Text = text
	reqBody.Comment.Type = "PLAIN_TEXT"
	reqBody.RequestedAttributes = map[string]struct{}{
		"TOXICITY":          {},
		"INSULT":            {},
		"PROFANITY":         {},
		"SEVERE_TOXICITY":   {},
		"IDENTITY_ATTACK":   {},
		"THREAT":            {},
		"SEXUALLY_EXPLICIT": {},
		"FLIRTATION":        {},
	}
	reqBody.Languages = []string{"en"}
	// Tells the provider not to retain submitted text.
	reqBody.DoNotStore = true

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return false, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"?key="+g.apiKey, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call analyzer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode analyze response: %w", err)
	}

	return allowedByPolicy(result), nil
}

func allowedByPolicy(result analyzeResponse) bool {
	score := func(attr string) float64 {
		return result.AttributeScores[attr].SummaryScore.Value
	}

	switch {
	case score("IDENTITY_ATTACK") > thresholdIdentityAttack,
		score("SEVERE_TOXICITY") > thresholdSevereToxicity,
		score("THREAT") > thresholdThreat,
		score("TOXICITY") > thresholdToxicity,
		score("SEXUALLY_EXPLICIT") > thresholdSexuallyExplicit,
		score("FLIRTATION") > thresholdFlirtation,
		score("INSULT") > thresholdInsult,
		score("PROFANITY") > thresholdProfanity:
		return false
	}
	return true
}
