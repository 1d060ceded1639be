package discord

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ledwatcher/internal/faucet"
	"ledwatcher/internal/query"
	"ledwatcher/internal/storage"
)

const testAddress = "0x00000000219ab540356cBB839Cbe05303d7705Fa"

type fakeGrantStore struct {
	grants []storage.FaucetGrant
}

func (f *fakeGrantStore) InsertGrantIfAbsent(_ context.Context, grant storage.FaucetGrant) error {
	f.grants = append(f.grants, grant)
	return nil
}

func (f *fakeGrantStore) GrantExists(_ context.Context, network, address, requesterID string) (bool, error) {
	for _, g := range f.grants {
		if g.Network == network && (g.Address == address || g.RequesterID == requesterID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGrantStore) ListGrants(context.Context, string) ([]storage.FaucetGrant, error) {
	return f.grants, nil
}

type fakeMinter struct{}

func (fakeMinter) MintTo(context.Context, string, *big.Int) (string, error) {
	return "0xfeedface", nil
}

type fakeMetricStore struct{}

func (fakeMetricStore) AppendMetric(context.Context, storage.MetricSample) error { return nil }
func (fakeMetricStore) QueryMetricRange(context.Context, string, storage.MetricKind, int64, int64) ([]storage.MetricSample, error) {
	return nil, nil
}
func (fakeMetricStore) ListRecentMetrics(context.Context, string, storage.MetricKind, int) ([]storage.MetricSample, error) {
	return nil, nil
}

type fakeSnapshotStore struct {
	snap *storage.UserSnapshot
}

func (f *fakeSnapshotStore) AppendUserSnapshot(context.Context, storage.UserSnapshot) error {
	return nil
}

func (f *fakeSnapshotStore) LatestSnapshotsByNetwork(context.Context, string) ([]storage.UserSnapshot, error) {
	return nil, nil
}

func (f *fakeSnapshotStore) LatestSnapshotForRequester(context.Context, string, string) (storage.UserSnapshot, error) {
	if f.snap == nil {
		return storage.UserSnapshot{}, storage.ErrNoSnapshot
	}
	return *f.snap, nil
}

type testEnv struct {
	handler *Handler
	private ed25519.PrivateKey
}

func newTestEnv(t *testing.T, snap *storage.UserSnapshot) *testEnv {
	t.Helper()

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}

	registry := faucet.New("sepolia", 100_000, &fakeGrantStore{}, fakeMinter{}, zerolog.Nop())
	facade := query.New("sepolia", fakeMetricStore{}, &fakeSnapshotStore{snap: snap})

	handler, err := NewHandler(hex.EncodeToString(public), registry, facade, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造处理器失败: %v", err)
	}
	return &testEnv{handler: handler, private: private}
}

func (e *testEnv) signedRequest(t *testing.T, payload any) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("序列化请求失败: %v", err)
	}

	timestamp := "1700000000"
	signature := ed25519.Sign(e.private, append([]byte(timestamp), body...))

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(signature))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	return req
}

func commandPayload(name, userID string, options ...commandOption) interactionRequest {
	return interactionRequest{
		Type:   interactionApplicationCommand,
		Member: &member{User: user{ID: userID}},
		Data:   &applicationData{Name: name, Options: options},
	}
}

func messageContent(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp interactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != responseChannelMessageWithSource {
		t.Fatalf("响应类型应为 %d, 实际 %d", responseChannelMessageWithSource, resp.Type)
	}
	if resp.Data == nil {
		t.Fatal("响应缺少 data")
	}
	return resp.Data.Content
}

func TestRejectsMissingSignature(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("缺少签名应返回 401, 实际 %d", rec.Code)
	}
}

func TestRejectsForgedSignature(t *testing.T) {
	env := newTestEnv(t, nil)

	_, wrongKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}

	body := []byte(`{"type":1}`)
	signature := ed25519.Sign(wrongKey, append([]byte("1700000000"), body...))

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(signature))
	req.Header.Set("X-Signature-Timestamp", "1700000000")

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("伪造签名应返回 401, 实际 %d", rec.Code)
	}
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, nil)

	req := env.signedRequest(t, interactionRequest{Type: interactionPing})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("PING 应返回 200, 实际 %d", rec.Code)
	}
	var resp interactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Type != responsePong {
		t.Fatalf("PING 应回应 PONG, 实际类型 %d", resp.Type)
	}
}

func TestFaucetCommand(t *testing.T) {
	env := newTestEnv(t, nil)

	payload := commandPayload("faucet", "user-1", commandOption{Name: "address", Value: testAddress})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, env.signedRequest(t, payload))

	if content := messageContent(t, rec); content != "💧 0xfeedface" {
		t.Fatalf("成功领取应回复交易哈希, 实际 %q", content)
	}

	// Second request from the same user is refused.
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, env.signedRequest(t, payload))

	if content := messageContent(t, rec); content != "❌ Address or User has already received funds" {
		t.Fatalf("重复领取的回复不正确: %q", content)
	}
}

func TestFaucetCommandInvalidAddress(t *testing.T) {
	env := newTestEnv(t, nil)

	payload := commandPayload("faucet", "user-1", commandOption{Name: "address", Value: "0x123"})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, env.signedRequest(t, payload))

	if content := messageContent(t, rec); !strings.HasPrefix(content, "❌") {
		t.Fatalf("非法地址应以 ❌ 回复, 实际 %q", content)
	}
}

func TestScoreCommandNoSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, env.signedRequest(t, commandPayload("score", "user-1")))

	if content := messageContent(t, rec); !strings.Contains(content, "No score recorded yet") {
		t.Fatalf("无快照时的回复不正确: %q", content)
	}
}

func TestScoreCommandWithSnapshot(t *testing.T) {
	snap := &storage.UserSnapshot{
		Network:   "sepolia",
		Timestamp: 1000,
		Address:   testAddress,
		NetValue:  new(big.Int).Mul(big.NewInt(106), big.NewInt(1_000_000_000_000_000_000)),
	}
	env := newTestEnv(t, snap)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, env.signedRequest(t, commandPayload("score", "user-1")))

	content := messageContent(t, rec)
	if !strings.Contains(content, "106.00") {
		t.Fatalf("回复应包含净值, 实际 %q", content)
	}
	if !strings.Contains(content, testAddress) {
		t.Fatalf("回复应包含地址, 实际 %q", content)
	}
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, env.signedRequest(t, commandPayload("bogus", "user-1")))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("未知命令应返回 404, 实际 %d", rec.Code)
	}
}
