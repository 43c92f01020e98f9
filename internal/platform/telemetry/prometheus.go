package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// PrometheusHandler serves every registered metric in Prometheus text
// exposition format. Families are emitted with HELP and TYPE lines even
// before their first observation, so dashboards see stable names.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var w promWriter
		reg := tp.metrics

		w.family("http_server_request_duration_seconds", "histogram",
			"Duration of HTTP requests in seconds.")
		labeled := reg.labeledSnapshot(requestDurationHist)
		if len(labeled) > 0 {
			for _, key := range sortedKeys(labeled) {
				parts := strings.SplitN(key, labelSep, 3)
				if len(parts) != 3 {
					continue
				}
				labels := fmt.Sprintf("method=%q,route=%q,status_code=%q",
					parts[0], parts[1], parts[2])
				w.histogram("http_server_request_duration_seconds", labels, labeled[key])
			}
		} else {
			w.histogram("http_server_request_duration_seconds", "",
				reg.histogram(requestDurationHist))
		}

		w.family("http_server_active_requests", "gauge",
			"Number of in-flight HTTP requests.")
		w.sample("http_server_active_requests", "", "%d", reg.gauge(activeRequestsGauge))

		w.family("http_server_request_size_bytes", "histogram",
			"Size of HTTP request bodies in bytes.")
		w.histogram("http_server_request_size_bytes", "", reg.histogram(requestSizeHist))

		w.family("http_server_response_size_bytes", "histogram",
			"Size of HTTP response bodies in bytes.")
		w.histogram("http_server_response_size_bytes", "", reg.histogram(responseSizeHist))

		w.family("hl7_message_processing_duration_seconds", "histogram",
			"Time from message receipt to acknowledgment in seconds.")
		w.histogram("hl7_message_processing_duration_seconds", "", reg.histogram(processingHist))

		w.family("hl7_messages_received_total", "counter",
			"Total HL7 messages received by type and trigger event.")
		received := reg.counterSeries(receivedCounter)
		for _, rest := range sortedKeys(received) {
			if lv := strings.SplitN(rest, labelSep, 2); len(lv) == 2 {
				w.sample("hl7_messages_received_total",
					fmt.Sprintf("type=%q,trigger=%q", lv[0], lv[1]), "%d", received[rest])
			}
		}

		w.family("hl7_messages_acked_total", "counter",
			"Total acknowledgments generated by code.")
		acked := reg.counterSeries(ackedCounter)
		for _, code := range sortedKeys(acked) {
			w.sample("hl7_messages_acked_total", fmt.Sprintf("code=%q", code), "%d", acked[code])
		}

		w.family("hl7_parse_failures_total", "counter",
			"Total inbound messages rejected by the parser.")
		w.sample("hl7_parse_failures_total", "", "%d", reg.counter(parseFailCounter))

		for _, g := range []struct {
			prom, name, help string
		}{
			{"db_pool_active_connections", dbActiveGauge, "Number of active database pool connections."},
			{"db_pool_idle_connections", dbIdleGauge, "Number of idle database pool connections."},
			{"hl7_messages_stored", storedGauge, "Total number of stored HL7 messages."},
		} {
			w.family(g.prom, "gauge", g.help)
			w.sample(g.prom, "", "%d", reg.gauge(g.name))
		}

		return c.String(http.StatusOK, w.b.String())
	}
}

// promWriter assembles text exposition output.
type promWriter struct {
	b strings.Builder
}

func (w *promWriter) family(name, kind, help string) {
	fmt.Fprintf(&w.b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(&w.b, "# TYPE %s %s\n", name, kind)
}

// sample writes one metric line. labels may be empty.
func (w *promWriter) sample(name, labels, format string, v any) {
	w.b.WriteString(name)
	if labels != "" {
		w.b.WriteByte('{')
		w.b.WriteString(labels)
		w.b.WriteByte('}')
	}
	w.b.WriteByte(' ')
	fmt.Fprintf(&w.b, format, v)
	w.b.WriteByte('\n')
}

// histogram writes the bucket, sum, and count lines for one series. A nil
// histogram (nothing observed yet) writes nothing; the family header has
// already gone out.
func (w *promWriter) histogram(name, labels string, h *histogram) {
	if h == nil {
		return
	}
	cum, count, sum := h.export()

	bucketLabels := func(le string) string {
		if labels == "" {
			return fmt.Sprintf("le=%q", le)
		}
		return labels + fmt.Sprintf(",le=%q", le)
	}
	for i, bound := range h.boundaries {
		w.sample(name+"_bucket", bucketLabels(fmt.Sprintf("%g", bound)), "%d", cum[i])
	}
	w.sample(name+"_bucket", bucketLabels("+Inf"), "%d", count)
	w.sample(name+"_sum", labels, "%g", sum)
	w.sample(name+"_count", labels, "%d", count)
}

// sortedKeys gives deterministic series order in the scrape output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
