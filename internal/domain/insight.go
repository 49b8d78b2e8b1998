package domain

import (
	"fmt"
	"math"
	"time"
)

// Trend is the direction of a cluster between the previous and current window.
type Trend string

const (
	TrendGrowing   Trend = "growing"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// DefaultTrendThreshold is the absolute delta at which a cluster stops being stable.
const DefaultTrendThreshold = 3

// Impact is the user impact reported by synthesis, ordered low < medium < high.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Rank orders impact levels; unknown levels rank zero.
func (i Impact) Rank() int {
	switch i {
	case ImpactLow:
		return 1
	case ImpactMedium:
		return 2
	case ImpactHigh:
		return 3
	}
	return 0
}

// ParseImpact accepts only the three known levels.
func ParseImpact(s string) (Impact, error) {
	impact := Impact(s)
	if impact.Rank() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidImpact, s)
	}
	return impact, nil
}

// Insert-time caps applied regardless of what synthesis returned.
const (
	MaxSummaryLength = 2000
	MaxIssueLength   = 200
)

// WindowLength is the span of both trailing windows.
const WindowLength = 7 * 24 * time.Hour

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowsFor returns the current window [today-7d, today) and the previous
// window [today-14d, today-7d), where today is the UTC date of now.
func WindowsFor(now time.Time) (current, previous Window) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	current = Window{Start: today.Add(-WindowLength), End: today}
	previous = Window{Start: today.Add(-2 * WindowLength), End: today.Add(-WindowLength)}
	return current, previous
}

// PercentDelta returns round(100*delta/previous, 2), or nil when previous is
// zero. It is never coerced to zero or infinity.
func PercentDelta(delta, previous int) *float64 {
	if previous <= 0 {
		return nil
	}
	pct := float64(delta) * 100 / float64(previous)
	pct = math.Round(pct*100) / 100
	return &pct
}

// ClassifyTrend labels a delta against threshold.
func ClassifyTrend(delta, threshold int) Trend {
	switch {
	case delta >= threshold:
		return TrendGrowing
	case delta <= -threshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// SizeBucket describes an all-time cluster size.
func SizeBucket(size int) string {
	switch {
	case size < 10:
		return "small"
	case size < 30:
		return "medium"
	default:
		return "large"
	}
}

// SentimentBucket describes a mean sentiment score.
func SentimentBucket(avg float64) string {
	switch {
	case avg < -0.3:
		return "strongly negative"
	case avg < 0.2:
		return "mixed"
	default:
		return "positive"
	}
}

// ClusterTrend carries window counts for one cluster.
type ClusterTrend struct {
	Key           ClusterKey
	Size          int
	AvgSentiment  float64
	CurrentCount  int
	PreviousCount int
	Delta         int
	DeltaPct      *float64
	Trend         Trend
}

// NewClusterTrend derives delta, percent delta and trend from two window counts.
func NewClusterTrend(stat ClusterStat, current, previous, threshold int) ClusterTrend {
	delta := current - previous
	return ClusterTrend{
		Key:           stat.Key,
		Size:          stat.Size,
		AvgSentiment:  stat.AvgSentiment,
		CurrentCount:  current,
		PreviousCount: previous,
		Delta:         delta,
		DeltaPct:      PercentDelta(delta, previous),
		Trend:         ClassifyTrend(delta, threshold),
	}
}

// ClusterInsight is one row of an append-only insight generation. The latest
// generation for a group is the set of rows at its max GeneratedAt.
type ClusterInsight struct {
	ID            int64
	Key           ClusterKey
	GeneratedAt   time.Time
	WindowStart   time.Time
	WindowEnd     time.Time
	CountCurrent  int
	CountPrevious int
	Delta         int
	DeltaPct      *float64
	Trend         Trend
	Summary       string
	PrimaryIssue  string
	Impact        Impact
}

// TruncateRunes cuts s to at most n characters.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ValidateClusterInsight validates a ClusterInsight before insert.
func ValidateClusterInsight(in *ClusterInsight) error {
	if in == nil {
		return fmt.Errorf("cluster insight cannot be nil")
	}
	if in.Key.Group == "" || in.Key.Model == "" {
		return fmt.Errorf("%w: cluster insight group and model", ErrMissingRequiredField)
	}
	if in.Key.Label < 0 {
		return fmt.Errorf("cluster insight label cannot be negative")
	}
	if in.GeneratedAt.IsZero() {
		return fmt.Errorf("%w: cluster insight GeneratedAt", ErrMissingRequiredField)
	}
	switch in.Trend {
	case TrendGrowing, TrendDeclining, TrendStable:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTrend, in.Trend)
	}
	if in.Impact.Rank() == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidImpact, in.Impact)
	}
	if in.Summary == "" || in.PrimaryIssue == "" {
		return fmt.Errorf("%w: cluster insight summary and primary issue", ErrMissingRequiredField)
	}
	return nil
}

// GroupSummary describes the insight history of one group.
type GroupSummary struct {
	Group            string
	LatestGeneration time.Time
	Generations      int
}
