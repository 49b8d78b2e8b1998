package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
)

const synthesisInstructions = `You MUST output VALID JSON ONLY.
No explanations. No markdown. No extra text.

You summarize customer feedback clusters.
Rules:
- Base conclusions ONLY on the provided review examples.
- Do NOT speculate about causes.
- Do NOT suggest solutions.
- Keep language neutral and factual.
- Each cluster is independent.

For each cluster, return:
- cluster_id (int)
- summary (1-2 sentences)
- primary_issue (2-4 words)
- user_impact: one of low | medium | high

Return JSON in this exact structure:
{
  "brand": "<brand>",
  "cluster_summaries": [
    {
      "cluster_id": 1,
      "summary": "...",
      "primary_issue": "...",
      "user_impact": "low"
    }
  ]
}`

// SynthesisCluster is one cluster as presented to the synthesis service.
type SynthesisCluster struct {
	ClusterID int      `json:"cluster_id"`
	Size      string   `json:"size"`
	Sentiment string   `json:"sentiment"`
	Trend     string   `json:"trend"`
	Examples  []string `json:"examples"`
}

// SynthesisRequest is the per-group input document.
type SynthesisRequest struct {
	Brand    string             `json:"brand"`
	Clusters []SynthesisCluster `json:"clusters"`
}

// ClusterSummary is one validated entry of a synthesis response.
type ClusterSummary struct {
	ClusterID    int
	Summary      string
	PrimaryIssue string
	Impact       domain.Impact
}

// SynthesisResponse is a validated synthesis response keyed by cluster id.
type SynthesisResponse struct {
	Brand     string
	Summaries map[int]ClusterSummary
}

// BuildSynthesisPrompt returns the system instructions and the user message
// carrying req as JSON.
func BuildSynthesisPrompt(req SynthesisRequest) (system, user string, err error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return "", "", fmt.Errorf("failed to encode synthesis input: %w", err)
	}
	return synthesisInstructions, "Input:\n" + strings.TrimSpace(buf.String()), nil
}

type rawClusterSummary struct {
	ClusterID    *int    `json:"cluster_id"`
	Summary      *string `json:"summary"`
	PrimaryIssue *string `json:"primary_issue"`
	UserImpact   *string `json:"user_impact"`
}

type rawSynthesisResponse struct {
	Brand            *string              `json:"brand"`
	ClusterSummaries *[]rawClusterSummary `json:"cluster_summaries"`
}

// ParseSynthesisResponse validates raw against the exact response structure
// before any field is used. Every failure is a SYNTHESIS_PARSE_ERROR; no
// defaults are filled in.
func ParseSynthesisResponse(raw string, req SynthesisRequest) (*SynthesisResponse, error) {
	resp, err := parseSynthesisResponse(raw, req)
	if err != nil {
		return nil, domain.NewSynthesisParseError(req.Brand, err)
	}
	return resp, nil
}

func parseSynthesisResponse(raw string, req SynthesisRequest) (*SynthesisResponse, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var doc rawSynthesisResponse
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}

	if doc.Brand == nil {
		return nil, errors.New("missing brand")
	}
	if *doc.Brand != req.Brand {
		return nil, fmt.Errorf("brand mismatch: got %q", *doc.Brand)
	}
	if doc.ClusterSummaries == nil {
		return nil, errors.New("missing cluster_summaries")
	}

	submitted := make(map[int]bool, len(req.Clusters))
	for _, c := range req.Clusters {
		submitted[c.ClusterID] = true
	}

	out := &SynthesisResponse{
		Brand:     *doc.Brand,
		Summaries: make(map[int]ClusterSummary, len(*doc.ClusterSummaries)),
	}
	for i, entry := range *doc.ClusterSummaries {
		switch {
		case entry.ClusterID == nil:
			return nil, fmt.Errorf("cluster_summaries[%d]: missing cluster_id", i)
		case entry.Summary == nil:
			return nil, fmt.Errorf("cluster_summaries[%d]: missing summary", i)
		case entry.PrimaryIssue == nil:
			return nil, fmt.Errorf("cluster_summaries[%d]: missing primary_issue", i)
		case entry.UserImpact == nil:
			return nil, fmt.Errorf("cluster_summaries[%d]: missing user_impact", i)
		}

		id := *entry.ClusterID
		if !submitted[id] {
			return nil, fmt.Errorf("cluster_summaries[%d]: cluster_id %d was not submitted", i, id)
		}
		if _, dup := out.Summaries[id]; dup {
			return nil, fmt.Errorf("cluster_summaries[%d]: duplicate cluster_id %d", i, id)
		}

		summary := strings.TrimSpace(*entry.Summary)
		issue := strings.TrimSpace(*entry.PrimaryIssue)
		if summary == "" || issue == "" {
			return nil, fmt.Errorf("cluster_summaries[%d]: empty summary or primary_issue", i)
		}

		impact, err := domain.ParseImpact(*entry.UserImpact)
		if err != nil {
			return nil, fmt.Errorf("cluster_summaries[%d]: %w", i, err)
		}

		out.Summaries[id] = ClusterSummary{
			ClusterID:    id,
			Summary:      summary,
			PrimaryIssue: issue,
			Impact:       impact,
		}
	}

	return out, nil
}
