package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats provides the collector access to live queue depths.
type QueueStats interface {
	QueueDepths(ctx context.Context) (download, transcription, upload int, err error)
	WorkerCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape
// time: stage queue depths, worker count, and database pool state.
type Collector struct {
	pool  *pgxpool.Pool
	stats QueueStats

	queueDepth      *prometheus.Desc
	workers         *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates the scrape-time collector. pool and stats may be nil
// during partial wiring; absent sources report nothing.
func NewCollector(pool *pgxpool.Pool, stats QueueStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Recordings pending per stage.",
			[]string{"stage"}, nil,
		),
		workers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "worker_count"),
			"Configured pipeline worker count.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.workers
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		dl, tr, up, err := c.stats.QueueDepths(ctx)
		cancel()
		if err == nil {
			ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(dl), "download")
			ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(tr), "transcription")
			ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(up), "upload")
		}
		ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(c.stats.WorkerCount()))
	}

	if c.pool != nil {
		st := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(st.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(st.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(st.IdleConns()))
	}
}
