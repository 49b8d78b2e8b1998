package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
)

const archiveTimeLayout = "20060102T150405.000000Z"

// ObjectStore is the subset of S3Client the archive needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// InsightArchive keeps a copy of each committed insight generation as one
// JSON object, so history survives database pruning.
type InsightArchive struct {
	store ObjectStore
}

func NewInsightArchive(store ObjectStore) *InsightArchive {
	return &InsightArchive{store: store}
}

func groupPrefix(group string) string {
	return "insights/" + url.PathEscape(group) + "/"
}

// ArchiveKey returns insights/<group>/<generated_at>.json with the group
// path-escaped.
func ArchiveKey(group string, generatedAt time.Time) string {
	return groupPrefix(group) + generatedAt.UTC().Format(archiveTimeLayout) + ".json"
}

type ArchivedCluster struct {
	ClusterID     int      `json:"cluster_id"`
	CountCurrent  int      `json:"count_last_7d"`
	CountPrevious int      `json:"count_prev_7d"`
	Delta         int      `json:"delta_count"`
	DeltaPct      *float64 `json:"delta_pct"`
	Trend         string   `json:"trend_label"`
	Summary       string   `json:"summary"`
	PrimaryIssue  string   `json:"primary_issue"`
	Impact        string   `json:"user_impact"`
}

// ArchivedGeneration is the stored document for one group generation.
type ArchivedGeneration struct {
	Group           string            `json:"brand"`
	ClusteringModel string            `json:"clustering_model"`
	GeneratedAt     time.Time         `json:"generated_at"`
	WindowStart     time.Time         `json:"window_start"`
	WindowEnd       time.Time         `json:"window_end"`
	Clusters        []ArchivedCluster `json:"clusters"`
}

func (a *InsightArchive) ArchiveGeneration(ctx context.Context, group string, generatedAt time.Time, insights []domain.ClusterInsight) error {
	if len(insights) == 0 {
		return nil
	}

	doc := ArchivedGeneration{
		Group:           group,
		ClusteringModel: insights[0].Key.Model,
		GeneratedAt:     generatedAt.UTC(),
		WindowStart:     insights[0].WindowStart.UTC(),
		WindowEnd:       insights[0].WindowEnd.UTC(),
		Clusters:        make([]ArchivedCluster, len(insights)),
	}
	for i, in := range insights {
		doc.Clusters[i] = ArchivedCluster{
			ClusterID:     in.Key.Label,
			CountCurrent:  in.CountCurrent,
			CountPrevious: in.CountPrevious,
			Delta:         in.Delta,
			DeltaPct:      in.DeltaPct,
			Trend:         string(in.Trend),
			Summary:       in.Summary,
			PrimaryIssue:  in.PrimaryIssue,
			Impact:        string(in.Impact),
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode insight generation: %w", err)
	}

	return a.store.PutObject(ctx, ArchiveKey(group, generatedAt), "application/json", body)
}

// History lists the archived generation times for a group, newest first.
// Keys that do not parse as generation timestamps are ignored.
func (a *InsightArchive) History(ctx context.Context, group string) ([]time.Time, error) {
	prefix := groupPrefix(group)
	keys, err := a.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		name, ok := strings.CutSuffix(strings.TrimPrefix(key, prefix), ".json")
		if !ok {
			continue
		}
		at, err := time.Parse(archiveTimeLayout, name)
		if err != nil {
			continue
		}
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

// Load reads one archived generation back.
func (a *InsightArchive) Load(ctx context.Context, group string, generatedAt time.Time) (*ArchivedGeneration, error) {
	body, err := a.store.GetObject(ctx, ArchiveKey(group, generatedAt))
	if err != nil {
		return nil, err
	}

	var doc ArchivedGeneration
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode archived generation: %w", err)
	}
	return &doc, nil
}

// ParseArchiveTime accepts the archive key layout or RFC 3339.
func ParseArchiveTime(s string) (time.Time, error) {
	if at, err := time.Parse(archiveTimeLayout, s); err == nil {
		return at, nil
	}
	at, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid generation time %q: want RFC 3339 or %s", s, archiveTimeLayout)
	}
	return at.UTC(), nil
}
