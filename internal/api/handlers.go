package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"ledwatcher/internal/query"
	"ledwatcher/internal/storage"
)

// Handler serves the metric range endpoints and the leaderboard.
type Handler struct {
	facade *query.Facade
}

// NewHandler wires the read facade into HTTP handlers.
func NewHandler(facade *query.Facade) *Handler {
	return &Handler{facade: facade}
}

type metricRow struct {
	Timestamp int64  `json:"timestamp"`
	Network   string `json:"network"`
	Value     string `json:"value"`
}

type leaderboardRow struct {
	Address        string `json:"address"`
	RequesterID    string `json:"requesterId"`
	Timestamp      int64  `json:"timestamp"`
	USDAssets      string `json:"usdAssets"`
	LEDAssets      string `json:"ledAssets"`
	LEDDebt        string `json:"ledDebt"`
	PriceAtSample  string `json:"priceAtSample"`
	NetValue       string `json:"netValue"`
	NetValueTokens string `json:"netValueTokens"`
}

// Metric returns a handler serving one metric series over a begin/end window.
func (h *Handler) Metric(kind storage.MetricKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		begin, ok := queryInt(w, r, "begin")
		if !ok {
			return
		}
		end, ok := queryInt(w, r, "end")
		if !ok {
			return
		}

		samples, err := h.facade.MetricRange(r.Context(), kind, begin, end)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		rows := make([]metricRow, len(samples))
		for i, s := range samples {
			rows[i] = metricRow{
				Timestamp: s.Timestamp,
				Network:   s.Network,
				Value:     s.Value.String(),
			}
		}
		respondData(w, rows)
	}
}

// Leaderboard serves the latest snapshot rows, highest net value first.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.facade.Leaderboard(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	rows := make([]leaderboardRow, len(snaps))
	for i, s := range snaps {
		rows[i] = leaderboardRow{
			Address:        s.Address,
			RequesterID:    s.RequesterID,
			Timestamp:      s.Timestamp,
			USDAssets:      s.USDAssets.String(),
			LEDAssets:      s.LEDAssets.String(),
			LEDDebt:        s.LEDDebt.String(),
			PriceAtSample:  s.PriceAtSample.String(),
			NetValue:       s.NetValue.String(),
			NetValueTokens: decimal.NewFromBigInt(s.NetValue, -18).StringFixed(4),
		}
	}
	respondData(w, rows)
}

// Health reports liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		respondError(w, http.StatusBadRequest, "Must define '"+name+"' param")
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Must define '"+name+"' param")
		return 0, false
	}
	return value, true
}
