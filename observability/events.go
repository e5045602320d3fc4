// Package observability bridges engine events into logs and Prometheus
// collectors.
package observability

import (
	"log/slog"

	"nftmarket/core/events"
	"nftmarket/native/custody"
	"nftmarket/native/market"
	"nftmarket/observability/metrics"
)

// Emitter returns an events.Emitter that records every engine event on the
// marketplace metrics and logs it at debug level. Wire it into both engines
// so settlement activity shows up on the /metrics endpoint.
func Emitter(logger *slog.Logger, m *metrics.MarketMetrics) events.Emitter {
	return events.EmitterFunc(func(evt events.Event) {
		if evt == nil {
			return
		}
		eventType := evt.EventType()
		switch eventType {
		case market.EventTypePosted:
			m.ObserveListingPosted()
		case market.EventTypeSettled:
			m.ObserveListingSettled()
		case market.EventTypeCancelled:
			m.ObserveListingCancelled()
		case market.EventTypeQuoteRegistered:
			m.ObserveContractRegistered("quote")
		case market.EventTypeAssetRegistered:
			m.ObserveContractRegistered("asset")
		case custody.EventTypeClaimed:
			m.ObserveAssetClaimed()
		case custody.EventTypeDelegated:
			m.ObserveDelegation("grant")
		case custody.EventTypeUndelegated:
			m.ObserveDelegation("revoke")
		case custody.EventTypeRoyaltyPaid:
			m.ObserveRoyaltyPaid()
		case custody.EventTypeTransferred:
			m.ObserveCustodyTransfer()
		}
		if logger != nil {
			logger.Debug("engine event", "type", eventType)
		}
	})
}
