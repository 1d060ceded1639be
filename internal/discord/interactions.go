package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledwatcher/internal/chain"
	"ledwatcher/internal/faucet"
	"ledwatcher/internal/metrics"
	"ledwatcher/internal/query"
	"ledwatcher/internal/storage"
)

// Discord interaction wire constants.
// https://discord.com/developers/docs/interactions/receiving-and-responding
const (
	interactionPing               = 1
	interactionApplicationCommand = 2

	responsePong                     = 1
	responseChannelMessageWithSource = 4
)

type interactionRequest struct {
	Type   int              `json:"type"`
	Member *member          `json:"member"`
	Data   *applicationData `json:"data"`
}

type member struct {
	User user `json:"user"`
}

type user struct {
	ID string `json:"id"`
}

type applicationData struct {
	Name    string          `json:"name"`
	Options []commandOption `json:"options"`
}

type commandOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type interactionResponse struct {
	Type int              `json:"type"`
	Data *responseMessage `json:"data,omitempty"`
}

type responseMessage struct {
	Content string `json:"content"`
}

// Handler serves the interactions webhook: signature verification, PING,
// and the faucet/score slash commands.
type Handler struct {
	publicKey ed25519.PublicKey
	registry  *faucet.Registry
	facade    *query.Facade
	logger    zerolog.Logger
}

// NewHandler 构造 Discord 交互处理器。publicKeyHex is the application's
// ed25519 verification key from the developer portal.
func NewHandler(publicKeyHex string, registry *faucet.Registry, facade *query.Facade, logger zerolog.Logger) (*Handler, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode discord public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("discord public key must be %d bytes", ed25519.PublicKeySize)
	}
	return &Handler{
		publicKey: ed25519.PublicKey(raw),
		registry:  registry,
		facade:    facade,
		logger:    logger.With().Str("component", "discord").Logger(),
	}, nil
}

// ServeHTTP implements the interactions endpoint contract: every request
// must carry a valid ed25519 signature over timestamp+body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r, body) {
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var req interactionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed interaction payload")
		return
	}

	switch req.Type {
	case interactionPing:
		writeResponse(w, interactionResponse{Type: responsePong})
	case interactionApplicationCommand:
		h.handleCommand(r.Context(), w, req)
	default:
		writeError(w, http.StatusNotFound, "Unexpected command")
	}
}

func (h *Handler) verifySignature(r *http.Request, body []byte) bool {
	signatureHex := r.Header.Get("X-Signature-Ed25519")
	timestamp := r.Header.Get("X-Signature-Timestamp")
	if signatureHex == "" || timestamp == "" {
		return false
	}
	signature, err := hex.DecodeString(signatureHex)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	message := append([]byte(timestamp), body...)
	return ed25519.Verify(h.publicKey, message, signature)
}

func (h *Handler) handleCommand(ctx context.Context, w http.ResponseWriter, req interactionRequest) {
	if req.Data == nil || req.Member == nil || req.Member.User.ID == "" {
		writeError(w, http.StatusBadRequest, "missing command data")
		return
	}
	requesterID := req.Member.User.ID

	switch req.Data.Name {
	case "faucet":
		h.handleFaucet(ctx, w, req.Data.Options, requesterID)
	case "score":
		h.handleScore(ctx, w, requesterID)
	default:
		writeError(w, http.StatusNotFound, "Unexpected command")
	}
}

func (h *Handler) handleFaucet(ctx context.Context, w http.ResponseWriter, options []commandOption, requesterID string) {
	if len(options) != 1 {
		writeError(w, http.StatusBadRequest, "Missing address")
		return
	}
	address := options[0].Value

	txRef, err := h.registry.RequestGrant(ctx, address, requesterID)
	switch {
	case err == nil:
		metrics.FaucetGrantTotal.WithLabelValues("ok").Inc()
		writeMessage(w, "💧 "+txRef)
	case errors.Is(err, faucet.ErrAlreadyGranted):
		metrics.FaucetGrantTotal.WithLabelValues("already_granted").Inc()
		writeMessage(w, "❌ Address or User has already received funds")
	case errors.Is(err, chain.ErrInvalidAddress):
		metrics.FaucetGrantTotal.WithLabelValues("invalid_address").Inc()
		writeMessage(w, "❌ Invalid address; expected a 42-character 0x address")
	case errors.Is(err, faucet.ErrMintFailed):
		metrics.FaucetGrantTotal.WithLabelValues("mint_failed").Inc()
		writeMessage(w, "❌ Mint failed; nothing was recorded, please try again")
	default:
		metrics.FaucetGrantTotal.WithLabelValues("error").Inc()
		h.logger.Error().Err(err).Str("requester", requesterID).Msg("faucet command failed")
		writeMessage(w, "❌ "+err.Error())
	}
}

func (h *Handler) handleScore(ctx context.Context, w http.ResponseWriter, requesterID string) {
	snap, err := h.facade.Score(ctx, requesterID)
	if err != nil {
		if errors.Is(err, storage.ErrNoSnapshot) {
			writeMessage(w, "No score recorded yet; scores refresh on the next sampling pass")
			return
		}
		h.logger.Error().Err(err).Str("requester", requesterID).Msg("score command failed")
		writeMessage(w, "❌ "+err.Error())
		return
	}

	score := decimal.NewFromBigInt(snap.NetValue, -18)
	writeMessage(w, fmt.Sprintf("🏅 %s — net value %s (sampled at %d)", snap.Address, score.StringFixed(2), snap.Timestamp))
}

func writeResponse(w http.ResponseWriter, resp interactionResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeMessage(w http.ResponseWriter, content string) {
	writeResponse(w, interactionResponse{
		Type: responseChannelMessageWithSource,
		Data: &responseMessage{Content: content},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
