package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/internal/ws"
)

// ActionsAndAnomaliesLimit bounds the ledger tails embedded in each
// Snapshot (spec §6 WS push: "tails of the actions/anomalies ledgers").
const ActionsAndAnomaliesLimit = 50

// Snapshot builds the envelope pushed to every WS client once per second
// (spec §6 "WS /ws"). Ledger read failures are logged and yield an empty
// slice rather than blocking the push loop.
func (e *Engine) Snapshot(ctx context.Context) ws.Snapshot {
	actions, err := e.ledger.ListActions(ctx, ActionsAndAnomaliesLimit)
	if err != nil {
		e.logger.Warn("snapshot: list actions failed", zap.Error(err))
	}
	anomalies, err := e.ledger.ListAnomalies(ctx, ActionsAndAnomaliesLimit)
	if err != nil {
		e.logger.Warn("snapshot: list anomalies failed", zap.Error(err))
	}

	return ws.Snapshot{
		TS:        time.Now().UTC(),
		Tiles:     e.Tiles(),
		Discover:  e.ListDiscoveries(ctx),
		Actions:   actions,
		Anomalies: anomalies,
		Status:    e.Status(),
	}
}
