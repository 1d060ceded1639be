package storage

import (
	"math/big"
	"time"
)

// MetricKind identifies one of the five protocol metric series.
type MetricKind string

const (
	MetricDeviationFactor MetricKind = "deviationFactor"
	MetricRedemptionRate  MetricKind = "redemptionRate"
	MetricOraclePrice     MetricKind = "LEDPrice"
	MetricLastGoodPrice   MetricKind = "lastGoodPrice"
	MetricMarketPrice     MetricKind = "marketPrice"
)

// metricTables maps each kind to its append-only table. Table names come
// exclusively from this closed map, never from request input.
var metricTables = map[MetricKind]string{
	MetricDeviationFactor: "deviation_factor",
	MetricRedemptionRate:  "redemption_rate",
	MetricOraclePrice:     "led_price",
	MetricLastGoodPrice:   "last_good_price",
	MetricMarketPrice:     "market_price",
}

// KnownMetricKind reports whether kind names one of the metric series.
func KnownMetricKind(kind MetricKind) bool {
	_, ok := metricTables[kind]
	return ok
}

// MetricKinds lists the metric series in sampling order.
func MetricKinds() []MetricKind {
	return []MetricKind{
		MetricDeviationFactor,
		MetricRedemptionRate,
		MetricOraclePrice,
		MetricLastGoodPrice,
		MetricMarketPrice,
	}
}

// MetricSample is one append-only protocol metric row.
type MetricSample struct {
	Network   string
	Timestamp int64
	Kind      MetricKind
	Value     *big.Int
}

// FaucetGrant records a one-time test token grant. Rows are created once
// and never updated or deleted.
type FaucetGrant struct {
	Network     string
	Address     string
	RequesterID string
	GrantTxRef  string
	CreatedAt   time.Time
}

// UserSnapshot is one immutable per-address balance snapshot row. All
// big.Int fields are wei-scale.
type UserSnapshot struct {
	Network       string
	Timestamp     int64
	Address       string
	RequesterID   string
	USDAssets     *big.Int
	LEDAssets     *big.Int
	LEDDebt       *big.Int
	PriceAtSample *big.Int
	NetValue      *big.Int
}
