package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/api"
	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/go-chi/chi/v5"
)

type InsightReader interface {
	LatestInsights(ctx context.Context, group string) ([]domain.ClusterInsight, error)
	ListGroups(ctx context.Context) ([]domain.GroupSummary, error)
}

type InsightHandler struct {
	repo InsightReader
}

func NewInsightHandler(repo InsightReader) *InsightHandler {
	return &InsightHandler{repo: repo}
}

type GroupResponse struct {
	Group            string    `json:"group"`
	LatestGeneration time.Time `json:"latest_generation"`
	Generations      int       `json:"generations"`
}

type ClusterInsightResponse struct {
	ClusterID       int      `json:"cluster_id"`
	ClusteringModel string   `json:"clustering_model"`
	CountCurrent    int      `json:"count_last_7d"`
	CountPrevious   int      `json:"count_prev_7d"`
	Delta           int      `json:"delta_count"`
	DeltaPct        *float64 `json:"delta_pct"`
	Trend           string   `json:"trend_label"`
	Summary         string   `json:"summary"`
	PrimaryIssue    string   `json:"primary_issue"`
	Impact          string   `json:"user_impact"`
}

type GenerationResponse struct {
	Group       string                   `json:"group"`
	GeneratedAt time.Time                `json:"generated_at"`
	WindowStart time.Time                `json:"window_start"`
	WindowEnd   time.Time                `json:"window_end"`
	Clusters    []ClusterInsightResponse `json:"clusters"`
}

func (h *InsightHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.repo.ListGroups(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]GroupResponse, len(groups))
	for i, g := range groups {
		resp[i] = GroupResponse{
			Group:            g.Group,
			LatestGeneration: g.LatestGeneration,
			Generations:      g.Generations,
		}
	}

	api.Data(w, http.StatusOK, resp)
}

// Latest returns the newest insight generation for a group. The optional
// min_impact query parameter drops clusters below that impact level.
func (h *InsightHandler) Latest(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if group == "" {
		api.Fail(w, http.StatusBadRequest, domain.ErrCodeValidation, "group is required")
		return
	}

	var minImpact domain.Impact
	if raw := r.URL.Query().Get("min_impact"); raw != "" {
		impact, err := domain.ParseImpact(raw)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, domain.ErrCodeValidation, "min_impact must be one of low, medium, high")
			return
		}
		minImpact = impact
	}

	insights, err := h.repo.LatestInsights(r.Context(), group)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	first := insights[0]
	resp := GenerationResponse{
		Group:       group,
		GeneratedAt: first.GeneratedAt,
		WindowStart: first.WindowStart,
		WindowEnd:   first.WindowEnd,
		Clusters:    make([]ClusterInsightResponse, 0, len(insights)),
	}
	for _, in := range insights {
		if in.Impact.Rank() < minImpact.Rank() {
			continue
		}
		resp.Clusters = append(resp.Clusters, ClusterInsightResponse{
			ClusterID:       in.Key.Label,
			ClusteringModel: in.Key.Model,
			CountCurrent:    in.CountCurrent,
			CountPrevious:   in.CountPrevious,
			Delta:           in.Delta,
			DeltaPct:        in.DeltaPct,
			Trend:           string(in.Trend),
			Summary:         in.Summary,
			PrimaryIssue:    in.PrimaryIssue,
			Impact:          string(in.Impact),
		})
	}

	api.Data(w, http.StatusOK, resp)
}
