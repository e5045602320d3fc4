package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks the marketplace and custody engines' throughput for
// the Prometheus endpoint.
type MarketMetrics struct {
	listingsPosted    prometheus.Counter
	listingsSettled   prometheus.Counter
	listingsCancelled prometheus.Counter
	contractsOnboard  *prometheus.CounterVec
	assetsClaimed     prometheus.Counter
	delegationChanges *prometheus.CounterVec
	royaltyPayments   prometheus.Counter
	custodyTransfers  prometheus.Counter
	callFailures      *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the process-wide marketplace metrics, registering the
// collectors on first use.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			listingsPosted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_listings_posted_total",
				Help: "Count of listings accepted by the marketplace.",
			}),
			listingsSettled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_listings_settled_total",
				Help: "Count of listings settled by a winning bid.",
			}),
			listingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_listings_cancelled_total",
				Help: "Count of listings withdrawn by their seller.",
			}),
			contractsOnboard: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_contracts_registered_total",
				Help: "Count of contract references onboarded by kind.",
			}, []string{"kind"}),
			assetsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "custody_assets_claimed_total",
				Help: "Count of assets claimed into custodial tracking.",
			}),
			delegationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "custody_delegation_changes_total",
				Help: "Count of delegation grants and revocations.",
			}, []string{"action"}),
			royaltyPayments: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "custody_royalty_payments_total",
				Help: "Count of recorded royalty payment proofs.",
			}),
			custodyTransfers: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "custody_transfers_total",
				Help: "Count of delegated sales settled through custody.",
			}),
			callFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rpc_call_failures_total",
				Help: "Count of rejected RPC operations by method.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			marketRegistry.listingsPosted,
			marketRegistry.listingsSettled,
			marketRegistry.listingsCancelled,
			marketRegistry.contractsOnboard,
			marketRegistry.assetsClaimed,
			marketRegistry.delegationChanges,
			marketRegistry.royaltyPayments,
			marketRegistry.custodyTransfers,
			marketRegistry.callFailures,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObserveListingPosted() {
	if m == nil {
		return
	}
	m.listingsPosted.Inc()
}

func (m *MarketMetrics) ObserveListingSettled() {
	if m == nil {
		return
	}
	m.listingsSettled.Inc()
}

func (m *MarketMetrics) ObserveListingCancelled() {
	if m == nil {
		return
	}
	m.listingsCancelled.Inc()
}

func (m *MarketMetrics) ObserveContractRegistered(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.contractsOnboard.WithLabelValues(kind).Inc()
}

func (m *MarketMetrics) ObserveAssetClaimed() {
	if m == nil {
		return
	}
	m.assetsClaimed.Inc()
}

func (m *MarketMetrics) ObserveDelegation(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.delegationChanges.WithLabelValues(action).Inc()
}

func (m *MarketMetrics) ObserveRoyaltyPaid() {
	if m == nil {
		return
	}
	m.royaltyPayments.Inc()
}

func (m *MarketMetrics) ObserveCustodyTransfer() {
	if m == nil {
		return
	}
	m.custodyTransfers.Inc()
}

func (m *MarketMetrics) IncCallFailure(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.callFailures.WithLabelValues(method).Inc()
}
