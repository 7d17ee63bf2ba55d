// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion subsystem.
type metricsIngestion struct {
	once sync.Once

	chunksParsed         prometheus.Counter
	chunksEmbedded       prometheus.Counter
	chunksEmbeddingFailed prometheus.Counter
	parseErrors          prometheus.Counter
	codeTextTruncated    prometheus.Counter
	embedRetries         prometheus.Counter

	stageDuration *prometheus.HistogramVec
	totalDuration prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.chunksParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_chunks_parsed_total", Help: "Code chunks extracted by the structural parser"})
		m.chunksEmbedded = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_chunks_embedded_total", Help: "Code chunks that received a genuine embedding"})
		m.chunksEmbeddingFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_chunks_embedding_failed_total", Help: "Code chunks that received a zero-vector substitute after retries were exhausted (spec §4.5, §7)"})
		m.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_parse_errors_total", Help: "Files that failed to parse and were skipped with a warning"})
		m.codeTextTruncated = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_code_text_truncated_total", Help: "Chunk texts truncated to the configured max size"})
		m.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "cie_ing_embeddings_retries_total", Help: "Embedding provider call retries"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cie_ing_stage_seconds",
			Help:    "Duration of one ingestion stage, labeled by stage name (spec §4.8)",
			Buckets: buckets,
		}, []string{"stage"})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cie_ing_total_seconds", Help: "Total duration of one ingestion task", Buckets: buckets})

		prometheus.MustRegister(
			m.chunksParsed, m.chunksEmbedded, m.chunksEmbeddingFailed,
			m.parseErrors, m.codeTextTruncated, m.embedRetries,
			m.stageDuration, m.totalDuration,
		)
	})
}

func recordEmbedRetry() { ingMetrics.init(); ingMetrics.embedRetries.Inc() }

func recordChunksParsed(n int) {
	ingMetrics.init()
	ingMetrics.chunksParsed.Add(float64(n))
}

func recordChunksEmbedded(ok, failed int) {
	ingMetrics.init()
	ingMetrics.chunksEmbedded.Add(float64(ok))
	ingMetrics.chunksEmbeddingFailed.Add(float64(failed))
}

func recordParseError() {
	ingMetrics.init()
	ingMetrics.parseErrors.Inc()
}

func recordCodeTextTruncated(n int) {
	ingMetrics.init()
	ingMetrics.codeTextTruncated.Add(float64(n))
}

func recordStageDuration(stage string, seconds float64) {
	ingMetrics.init()
	ingMetrics.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func recordTotalDuration(seconds float64) {
	ingMetrics.init()
	ingMetrics.totalDuration.Observe(seconds)
}
