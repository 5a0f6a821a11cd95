package api

import (
	"time"

	"chitamaker/internal/config"
)

// MarketSnapshotProvider provides read-only snapshot access to engine state.
type MarketSnapshotProvider interface {
	GetMarketsSnapshot() []MarketStatus
	GetAccountSnapshot() AccountSnapshot
}

// BuildSnapshot aggregates state from the engine into a dashboard snapshot.
func BuildSnapshot(provider MarketSnapshotProvider, cfg config.Config) DashboardSnapshot {
	return DashboardSnapshot{
		Timestamp: time.Now(),
		Markets:   provider.GetMarketsSnapshot(),
		Account:   provider.GetAccountSnapshot(),
		Config:    NewConfigSummary(cfg),
	}
}
