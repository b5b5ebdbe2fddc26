package policy

import "ledger-engine/internal/ledger"

// LaneConfig is the rule set applied to one lane.
//
// The table is static configuration resolved at startup. Nothing reads raw
// environment variables at evaluation time.
type LaneConfig struct {
	RequireOwner bool

	MinReceiptsToApprove int
	MinReceiptsToClose   int

	MinConfidenceToApprove float64
	MinConfidenceToClose   float64

	// RequireControlReceiptAtRisk demands a receipt whose title carries a
	// control/compliance marker before an at-risk event may be approved.
	RequireControlReceiptAtRisk bool
}

// Config holds the default lane policy plus per-lane overrides.
type Config struct {
	Default   LaneConfig
	Overrides map[ledger.Lane]LaneConfig
}

// DefaultConfig mirrors the shipped lane table. Lanes without an override
// evaluate under Default.
func DefaultConfig() Config {
	return Config{
		Default: LaneConfig{
			RequireOwner:           true,
			MinReceiptsToApprove:   1,
			MinReceiptsToClose:     2,
			MinConfidenceToApprove: 0.5,
			MinConfidenceToClose:   0.7,
		},
		Overrides: map[ledger.Lane]LaneConfig{
			ledger.LaneValue: {
				RequireOwner:           true,
				MinReceiptsToApprove:   2,
				MinReceiptsToClose:     3,
				MinConfidenceToApprove: 0.75,
				MinConfidenceToClose:   0.85,
			},
			ledger.LaneRisk: {
				RequireOwner:                true,
				MinReceiptsToApprove:        2,
				MinReceiptsToClose:          2,
				MinConfidenceToApprove:      0.6,
				MinConfidenceToClose:        0.8,
				RequireControlReceiptAtRisk: true,
			},
			ledger.LaneCompliance: {
				RequireOwner:                true,
				MinReceiptsToApprove:        1,
				MinReceiptsToClose:          2,
				MinConfidenceToApprove:      0.5,
				MinConfidenceToClose:        0.9,
				RequireControlReceiptAtRisk: true,
			},
		},
	}
}

// ForLane resolves the effective lane config.
func (c Config) ForLane(lane ledger.Lane) LaneConfig {
	if lc, ok := c.Overrides[lane]; ok {
		return lc
	}
	return c.Default
}
