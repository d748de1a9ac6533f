// Package metrics holds the Prometheus collectors that are not scoped to
// a single manager's hot path (see exec.Metrics for the per-call
// counters); SPEC_FULL.md §1.1 names registry size alongside calls
// passed/failed, ops spent, and rollbacks.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistrySize reports how many accounts and contracts are currently
// registered, updated by registry.Manager at the end of every
// ApplyChanges.
type RegistrySize struct {
	Accounts  prometheus.Gauge
	Contracts prometheus.Gauge
}

// NewRegistrySize constructs a RegistrySize collector under the given
// namespace/subsystem.
func NewRegistrySize(namespace, subsystem string) *RegistrySize {
	return &RegistrySize{
		Accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "registered_accounts",
			Help: "Number of permanently registered accounts.",
		}),
		Contracts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "registered_contracts",
			Help: "Number of permanently registered contracts.",
		}),
	}
}

// Set updates both gauges.
func (m *RegistrySize) Set(accounts, contracts int) {
	m.Accounts.Set(float64(accounts))
	m.Contracts.Set(float64(contracts))
}

// Describe implements prometheus.Collector.
func (m *RegistrySize) Describe(ch chan<- *prometheus.Desc) {
	m.Accounts.Describe(ch)
	m.Contracts.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *RegistrySize) Collect(ch chan<- prometheus.Metric) {
	m.Accounts.Collect(ch)
	m.Contracts.Collect(ch)
}
