package query

import (
	"context"
	"fmt"

	"ledwatcher/internal/storage"
)

// Facade is the read side: time-range metric queries, the leaderboard,
// and per-requester scores. It owns no data; everything comes from the
// snapshot store.
type Facade struct {
	network   string
	metrics   storage.MetricStore
	snapshots storage.UserSnapshotStore
}

// New constructs the read facade for one network.
func New(network string, metrics storage.MetricStore, snapshots storage.UserSnapshotStore) *Facade {
	return &Facade{network: network, metrics: metrics, snapshots: snapshots}
}

// MetricRange returns the metric rows with begin < timestamp < end,
// ascending. Both bounds are exclusive.
func (f *Facade) MetricRange(ctx context.Context, kind storage.MetricKind, begin, end int64) ([]storage.MetricSample, error) {
	if !storage.KnownMetricKind(kind) {
		return nil, fmt.Errorf("unknown metric kind: %s", kind)
	}
	return f.metrics.QueryMetricRange(ctx, f.network, kind, begin, end)
}

// Leaderboard returns one snapshot per address at the network's maximum
// sampled timestamp, highest net value first.
func (f *Facade) Leaderboard(ctx context.Context) ([]storage.UserSnapshot, error) {
	return f.snapshots.LatestSnapshotsByNetwork(ctx, f.network)
}

// Score returns the most recent snapshot recorded for the requester.
// Returns storage.ErrNoSnapshot when the requester was never sampled.
func (f *Facade) Score(ctx context.Context, requesterID string) (storage.UserSnapshot, error) {
	if requesterID == "" {
		return storage.UserSnapshot{}, fmt.Errorf("requester id is required")
	}
	return f.snapshots.LatestSnapshotForRequester(ctx, f.network, requesterID)
}
