// Package observability records render and export timings in SQLite and sets
// up structured logging.
//
// Metrics are buffered and flushed in batches. A full buffer flushes
// synchronously; Close flushes what is left.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/diagrammer/dbopen"
)

// Metric names.
const (
	MetricRenderDurationMs = "render_duration_ms"
	MetricExportDurationMs = "export_duration_ms"
	MetricExportFailures   = "export_failures"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit"` // "milliseconds", "count"
}

// Recorder accepts datapoints. *MetricsManager implements it; Discard drops
// them.
type Recorder interface {
	Record(m *Metric)
}

type discard struct{}

func (discard) Record(*Metric) {}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

// Options configures a MetricsManager.
type Options struct {
	BufferSize    int           // default 100
	FlushInterval time.Duration // default 5s
	Logger        *slog.Logger
}

func (o *Options) defaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// MetricsManager buffers metrics and flushes them to SQLite in batches.
type MetricsManager struct {
	db     *sql.DB
	opts   Options
	buffer []*Metric
	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMetricsManager creates a manager and starts its flush loop. The schema
// must already be applied.
func NewMetricsManager(db *sql.DB, opts Options) *MetricsManager {
	opts.defaults()
	mm := &MetricsManager{
		db:     db,
		opts:   opts,
		buffer: make([]*Metric, 0, opts.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues a metric. A zero Timestamp means now.
func (mm *MetricsManager) Record(m *Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.opts.BufferSize {
		mm.flushLocked()
	}
}

// Flush writes buffered metrics now.
func (mm *MetricsManager) Flush() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.flushLocked()
}

// Duration records d in milliseconds under name.
func Duration(r Recorder, name string, d time.Duration, labels map[string]string) {
	r.Record(&Metric{
		Name:   name,
		Value:  float64(d.Microseconds()) / 1000,
		Labels: labels,
		Unit:   "milliseconds",
	})
}

// Count records a count of 1 under name.
func Count(r Recorder, name string, labels map[string]string) {
	r.Record(&Metric{Name: name, Value: 1, Labels: labels, Unit: "count"})
}

// Query retrieves metrics filtered by name and time range, newest first.
// Pass empty metricName for all metrics. Nil time pointers mean unbounded.
func (mm *MetricsManager) Query(ctx context.Context, metricName string, startTime, endTime *time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	args := make([]any, 0, 4)
	if metricName != "" {
		q += " AND metric_name = ?"
		args = append(args, metricName)
	}
	if startTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, startTime.UnixMilli())
	}
	if endTime != nil {
		q += " AND timestamp <= ?"
		args = append(args, endTime.UnixMilli())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var m Metric
		var ts int64
		var labelsJSON, unit sql.NullString
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labelsJSON, &unit); err != nil {
			return nil, fmt.Errorf("observability: scan metric: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts)
		m.Unit = unit.String
		if labelsJSON.Valid {
			_ = json.Unmarshal([]byte(labelsJSON.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Summary aggregates one metric.
type Summary struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

// Summarize aggregates every metric name recorded since since.
func (mm *MetricsManager) Summarize(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := mm.db.QueryContext(ctx, `
		SELECT metric_name, COUNT(*), SUM(value), AVG(value), MAX(value)
		FROM metrics_timeseries WHERE timestamp >= ?
		GROUP BY metric_name ORDER BY metric_name`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("observability: summarize: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.Count, &s.Sum, &s.Avg, &s.Max); err != nil {
			return nil, fmt.Errorf("observability: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup deletes metrics older than retention and returns the count removed.
func (mm *MetricsManager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, mm.db, "DELETE FROM metrics_timeseries WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes remaining metrics and stops the flush loop. Later calls are
// no-ops.
func (mm *MetricsManager) Close() error {
	mm.once.Do(func() {
		close(mm.stop)
		<-mm.done
	})
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}
	log := mm.opts.Logger

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, m := range mm.buffer {
			var labelsJSON sql.NullString
			if len(m.Labels) > 0 {
				if b, err := json.Marshal(m.Labels); err == nil {
					labelsJSON = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.UnixMilli(), m.Value, labelsJSON, m.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", m.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("observability: flush metrics", "error", err, "dropped", len(mm.buffer))
	}
	mm.buffer = mm.buffer[:0]
}
