// Package metrics wires the core's observability points to
// github.com/prometheus/client_golang, grounded on the teacher's own
// metrics/prometheus exporter package. Every gauge/counter here is
// named in SPEC_FULL.md's AMBIENT STACK section.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HeaderDAGSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "header_oracle",
		Name:      "dag_size",
		Help:      "Number of headers currently held in the DAG, per chain.",
	}, []string{"chain"})

	ReorgTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaincore",
		Subsystem: "header_oracle",
		Name:      "reorg_total",
		Help:      "Number of reorgs executed, per chain.",
	}, []string{"chain"})

	DownloadQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "block_oracle",
		Name:      "download_queue_depth",
		Help:      "Number of hashes currently waiting for assignment in the download queue.",
	}, []string{"chain"})

	IBDActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "block_oracle",
		Name:      "ibd_active",
		Help:      "1 while initial block download is in progress, 0 once caught up.",
	}, []string{"chain"})

	FuturesOutstanding = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "block_oracle",
		Name:      "futures_outstanding",
		Help:      "Number of Load() futures not yet resolved.",
	}, []string{"chain"})

	SubchainScanHeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "wallet",
		Name:      "subchain_scan_height",
		Help:      "last_scanned height, per subchain.",
	}, []string{"chain", "subchain"})

	StuckJobTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaincore",
		Subsystem: "wallet",
		Name:      "stuck_job_total",
		Help:      "Number of times a job failed to ack its watchdog in time.",
	}, []string{"chain", "subchain", "job"})

	OTDHTActiveChains = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "otdht",
		Name:      "active_chains",
		Help:      "Number of chains the OTDHT peer considers active.",
	}, []string{"endpoint"})

	OTDHTRegisteredChains = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chaincore",
		Subsystem: "otdht",
		Name:      "registered_chains",
		Help:      "Number of chains currently registered with the OTDHT peer.",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(
		HeaderDAGSize,
		ReorgTotal,
		DownloadQueueDepth,
		IBDActive,
		FuturesOutstanding,
		SubchainScanHeight,
		StuckJobTotal,
		OTDHTActiveChains,
		OTDHTRegisteredChains,
	)
}
