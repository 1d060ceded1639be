package query

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"ledwatcher/internal/storage"
)

type fakeMetricStore struct {
	network string
	kind    storage.MetricKind
	begin   int64
	end     int64
	samples []storage.MetricSample
}

func (f *fakeMetricStore) AppendMetric(context.Context, storage.MetricSample) error { return nil }

func (f *fakeMetricStore) QueryMetricRange(_ context.Context, network string, kind storage.MetricKind, begin, end int64) ([]storage.MetricSample, error) {
	f.network, f.kind, f.begin, f.end = network, kind, begin, end
	return f.samples, nil
}

func (f *fakeMetricStore) ListRecentMetrics(context.Context, string, storage.MetricKind, int) ([]storage.MetricSample, error) {
	return nil, nil
}

type fakeSnapshotStore struct {
	latest    []storage.UserSnapshot
	requester string
	snap      storage.UserSnapshot
	err       error
}

func (f *fakeSnapshotStore) AppendUserSnapshot(context.Context, storage.UserSnapshot) error {
	return nil
}

func (f *fakeSnapshotStore) LatestSnapshotsByNetwork(context.Context, string) ([]storage.UserSnapshot, error) {
	return f.latest, nil
}

func (f *fakeSnapshotStore) LatestSnapshotForRequester(_ context.Context, _, requesterID string) (storage.UserSnapshot, error) {
	f.requester = requesterID
	if f.err != nil {
		return storage.UserSnapshot{}, f.err
	}
	return f.snap, nil
}

func TestMetricRangeUnknownKind(t *testing.T) {
	f := New("sepolia", &fakeMetricStore{}, &fakeSnapshotStore{})
	if _, err := f.MetricRange(context.Background(), "bogus", 0, 10); err == nil {
		t.Fatal("未知指标种类应报错")
	}
}

func TestMetricRangePassesNetworkAndBounds(t *testing.T) {
	store := &fakeMetricStore{samples: []storage.MetricSample{
		{Network: "sepolia", Timestamp: 5, Kind: storage.MetricMarketPrice, Value: big.NewInt(1)},
	}}
	f := New("sepolia", store, &fakeSnapshotStore{})

	samples, err := f.MetricRange(context.Background(), storage.MetricMarketPrice, 1, 10)
	if err != nil {
		t.Fatalf("合法查询不应报错: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("应返回底层存储的结果")
	}
	if store.network != "sepolia" || store.kind != storage.MetricMarketPrice || store.begin != 1 || store.end != 10 {
		t.Fatalf("查询参数透传不正确: %+v", store)
	}
}

func TestScoreRequiresRequester(t *testing.T) {
	f := New("sepolia", &fakeMetricStore{}, &fakeSnapshotStore{})
	if _, err := f.Score(context.Background(), ""); err == nil {
		t.Fatal("空 requester id 应报错")
	}
}

func TestScorePassesThroughNoSnapshot(t *testing.T) {
	snaps := &fakeSnapshotStore{err: storage.ErrNoSnapshot}
	f := New("sepolia", &fakeMetricStore{}, snaps)

	_, err := f.Score(context.Background(), "user-1")
	if !errors.Is(err, storage.ErrNoSnapshot) {
		t.Fatalf("应透传 ErrNoSnapshot, 实际 %v", err)
	}
	if snaps.requester != "user-1" {
		t.Fatalf("requester id 透传不正确: %q", snaps.requester)
	}
}
