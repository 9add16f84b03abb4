// Package telemetry implements DryBox's three deterministic artifacts
// (metrics.csv, events.jsonl, capture.dbxcap) plus an additive, scrape-only
// Prometheus view over the same rolling-rate numbers, per spec.md §4.9.
package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// MetricsColumns is the fixed metrics.csv header, per spec.md §3.
var MetricsColumns = []string{
	"t_ms", "side", "layer", "event", "rtt_ms_est", "latency_ms", "jitter_ms",
	"loss_rate", "reorder_rate", "goodput_bps", "snr_db_est", "ber", "per",
	"cfo_hz_est", "lock_ratio", "hs_time_ms", "rekey_ms", "aead_fail_cnt",
}

// MetricsRow is one row of metrics.csv. Every optional numeric cell is a
// pointer so a nil value renders as an empty cell, per spec.md §3
// ("empty cells allowed").
type MetricsRow struct {
	TMs         int64
	Side        string
	Layer       string
	Event       string
	RTTMsEst    *float64
	LatencyMs   *float64
	JitterMs    *float64
	LossRate    *float64
	ReorderRate *float64
	GoodputBps  *float64
	SNRdBEst    *float64
	BER         *float64
	PER         *float64
	CFOHzEst    *float64
	LockRatio   *float64
	HsTimeMs    *float64
	RekeyMs     *float64
	AEADFailCnt *int64
}

// Float is a convenience constructor for MetricsRow's optional float cells.
func Float(v float64) *float64 { return &v }

// Int is a convenience constructor for MetricsRow's optional int cells.
func Int(v int64) *int64 { return &v }

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func cellInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func (r MetricsRow) record() []string {
	return []string{
		strconv.FormatInt(r.TMs, 10),
		r.Side,
		r.Layer,
		r.Event,
		cell(r.RTTMsEst),
		cell(r.LatencyMs),
		cell(r.JitterMs),
		cell(r.LossRate),
		cell(r.ReorderRate),
		cell(r.GoodputBps),
		cell(r.SNRdBEst),
		cell(r.BER),
		cell(r.PER),
		cell(r.CFOHzEst),
		cell(r.LockRatio),
		cell(r.HsTimeMs),
		cell(r.RekeyMs),
		cellInt(r.AEADFailCnt),
	}
}

// MetricsWriter appends rows to metrics.csv, writing the header once at
// creation.
type MetricsWriter struct {
	f *os.File
	w *csv.Writer
}

// NewMetricsWriter creates (or truncates) metrics.csv at path and writes its
// header.
func NewMetricsWriter(path string) (*MetricsWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metrics.csv: %w", err)
	}
	w := csv.NewWriter(file)
	if err := w.Write(MetricsColumns); err != nil {
		file.Close()
		return nil, fmt.Errorf("telemetry: write metrics.csv header: %w", err)
	}
	return &MetricsWriter{f: file, w: w}, nil
}

// WriteRow appends one row.
func (m *MetricsWriter) WriteRow(row MetricsRow) error {
	if err := m.w.Write(row.record()); err != nil {
		return fmt.Errorf("telemetry: write metrics row: %w", err)
	}
	return nil
}

// Flush flushes buffered writes to disk without closing the file. The runner
// does not flush metrics.csv per tick; Close flushes it at the end of the run.
func (m *MetricsWriter) Flush() error {
	m.w.Flush()
	return m.w.Error()
}

// Close flushes and closes metrics.csv.
func (m *MetricsWriter) Close() error {
	if err := m.Flush(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}
