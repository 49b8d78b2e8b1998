package domain

import "fmt"

// DefaultClusteringModel tags assignments produced by cosine-normalized k-means.
const DefaultClusteringModel = "kmeans_v1_cosine_norm"

// ClusterKey identifies a cluster label. A label is local to its group and
// clustering model: label 2 in one group is unrelated to label 2 in another,
// and labels carry no identity across runs. Never compare Label alone.
type ClusterKey struct {
	Group string
	Model string
	Label int
}

func (k ClusterKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Group, k.Model, k.Label)
}

// ClusterAssignment records a Record's membership in a cluster. Assignments
// are append-only: a record is never reassigned for the same model.
type ClusterAssignment struct {
	RecordID  int64
	ClusterID int
	Model     string
}

// ClusterStat is the all-time size of a cluster and the mean external
// sentiment score of its members.
type ClusterStat struct {
	Key          ClusterKey
	Size         int
	AvgSentiment float64
}

// ValidateClusterAssignment validates a ClusterAssignment instance
func ValidateClusterAssignment(a *ClusterAssignment) error {
	if a == nil {
		return fmt.Errorf("cluster assignment cannot be nil")
	}
	if a.RecordID <= 0 {
		return fmt.Errorf("cluster assignment RecordID must be positive")
	}
	if a.ClusterID < 0 {
		return fmt.Errorf("cluster assignment ClusterID cannot be negative")
	}
	if a.Model == "" {
		return fmt.Errorf("cluster assignment Model is required")
	}
	return nil
}
