package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledwatcher/internal/query"
	"ledwatcher/internal/storage"
)

type fakeMetricStore struct {
	samples []storage.MetricSample
}

func (f *fakeMetricStore) AppendMetric(context.Context, storage.MetricSample) error { return nil }

func (f *fakeMetricStore) QueryMetricRange(context.Context, string, storage.MetricKind, int64, int64) ([]storage.MetricSample, error) {
	return f.samples, nil
}

func (f *fakeMetricStore) ListRecentMetrics(context.Context, string, storage.MetricKind, int) ([]storage.MetricSample, error) {
	return nil, nil
}

type fakeSnapshotStore struct {
	latest []storage.UserSnapshot
}

func (f *fakeSnapshotStore) AppendUserSnapshot(context.Context, storage.UserSnapshot) error {
	return nil
}

func (f *fakeSnapshotStore) LatestSnapshotsByNetwork(context.Context, string) ([]storage.UserSnapshot, error) {
	return f.latest, nil
}

func (f *fakeSnapshotStore) LatestSnapshotForRequester(context.Context, string, string) (storage.UserSnapshot, error) {
	return storage.UserSnapshot{}, storage.ErrNoSnapshot
}

func newTestHandler(metrics *fakeMetricStore, snaps *fakeSnapshotStore) *Handler {
	return NewHandler(query.New("sepolia", metrics, snaps))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应体失败: %v", err)
	}
	return body
}

func TestMetricMissingBeginParam(t *testing.T) {
	h := newTestHandler(&fakeMetricStore{}, &fakeSnapshotStore{})

	req := httptest.NewRequest(http.MethodGet, "/marketPrice?end=100", nil)
	rec := httptest.NewRecorder()
	h.Metric(storage.MetricMarketPrice).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("缺少 begin 应返回 400, 实际 %d", rec.Code)
	}
	body := decodeBody(t, rec)
	var msg string
	_ = json.Unmarshal(body["error"], &msg)
	if msg != "Must define 'begin' param" {
		t.Fatalf("错误消息不正确: %q", msg)
	}
}

func TestMetricNonNumericEndParam(t *testing.T) {
	h := newTestHandler(&fakeMetricStore{}, &fakeSnapshotStore{})

	req := httptest.NewRequest(http.MethodGet, "/marketPrice?begin=0&end=abc", nil)
	rec := httptest.NewRecorder()
	h.Metric(storage.MetricMarketPrice).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非数字 end 应返回 400, 实际 %d", rec.Code)
	}
	body := decodeBody(t, rec)
	var msg string
	_ = json.Unmarshal(body["error"], &msg)
	if msg != "Must define 'end' param" {
		t.Fatalf("错误消息不正确: %q", msg)
	}
}

func TestMetricSuccessShape(t *testing.T) {
	metrics := &fakeMetricStore{samples: []storage.MetricSample{
		{Network: "sepolia", Timestamp: 5, Kind: storage.MetricMarketPrice, Value: big.NewInt(2_000_000_000_000_000_000)},
		{Network: "sepolia", Timestamp: 6, Kind: storage.MetricMarketPrice, Value: big.NewInt(2_100_000_000_000_000_000)},
	}}
	h := newTestHandler(metrics, &fakeSnapshotStore{})

	req := httptest.NewRequest(http.MethodGet, "/marketPrice?begin=0&end=100", nil)
	rec := httptest.NewRecorder()
	h.Metric(storage.MetricMarketPrice).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("合法查询应返回 200, 实际 %d", rec.Code)
	}

	var body struct {
		Data []struct {
			Timestamp int64  `json:"timestamp"`
			Network   string `json:"network"`
			Value     string `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应体失败: %v", err)
	}
	if len(body.Data) != 2 {
		t.Fatalf("data 应包含 2 行, 实际 %d", len(body.Data))
	}
	if body.Data[0].Value != "2000000000000000000" {
		t.Fatalf("value 应为十进制字符串, 实际 %q", body.Data[0].Value)
	}
	if body.Data[0].Network != "sepolia" {
		t.Fatalf("network 不正确: %q", body.Data[0].Network)
	}
}

func TestMetricEmptyRange(t *testing.T) {
	h := newTestHandler(&fakeMetricStore{}, &fakeSnapshotStore{})

	req := httptest.NewRequest(http.MethodGet, "/marketPrice?begin=0&end=100", nil)
	rec := httptest.NewRecorder()
	h.Metric(storage.MetricMarketPrice).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("空区间应返回 200, 实际 %d", rec.Code)
	}
	if rec.Body.String() != "{\"data\":[]}\n" {
		t.Fatalf("空区间应返回空 data 数组, 实际 %q", rec.Body.String())
	}
}

func TestLeaderboardShape(t *testing.T) {
	snaps := &fakeSnapshotStore{latest: []storage.UserSnapshot{
		{
			Network:       "sepolia",
			Timestamp:     1000,
			Address:       "0x00000000219ab540356cBB839Cbe05303d7705Fa",
			RequesterID:   "user-1",
			USDAssets:     big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000)),
			LEDAssets:     big.NewInt(0).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000)),
			LEDDebt:       big.NewInt(0).Mul(big.NewInt(2), big.NewInt(1_000_000_000_000_000_000)),
			PriceAtSample: big.NewInt(0).Mul(big.NewInt(2), big.NewInt(1_000_000_000_000_000_000)),
			NetValue:      big.NewInt(0).Mul(big.NewInt(106), big.NewInt(1_000_000_000_000_000_000)),
		},
	}}
	h := newTestHandler(&fakeMetricStore{}, snaps)

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	rec := httptest.NewRecorder()
	h.Leaderboard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("排行榜应返回 200, 实际 %d", rec.Code)
	}

	var body struct {
		Data []struct {
			Address        string `json:"address"`
			Timestamp      int64  `json:"timestamp"`
			NetValue       string `json:"netValue"`
			NetValueTokens string `json:"netValueTokens"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应体失败: %v", err)
	}
	if len(body.Data) != 1 {
		t.Fatalf("data 应包含 1 行, 实际 %d", len(body.Data))
	}
	if body.Data[0].NetValue != "106000000000000000000" {
		t.Fatalf("netValue 不正确: %q", body.Data[0].NetValue)
	}
	if body.Data[0].NetValueTokens != "106.0000" {
		t.Fatalf("netValueTokens 应为四位小数, 实际 %q", body.Data[0].NetValueTokens)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz 应返回 200, 实际 %d", rec.Code)
	}
}
