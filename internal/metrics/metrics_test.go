package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) (float64, bool) {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue(), true
		}
	}
	return 0, false
}

// TestRecordMessageAppended_IncrementsCounter はメッセージ永続化カウンタが増加することを検証する。
func TestRecordMessageAppended_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessageAppended()
	c.RecordMessageAppended()

	val, found := counterValue(t, reg, "murmur_messages_appended_total")
	if !found {
		t.Fatal("murmur_messages_appended_total metric not found")
	}
	if val != 2 {
		t.Errorf("messages_appended_total = %v, want 2", val)
	}
}

// TestRecordBroadcastDrop_IncrementsCounter は配信破棄カウンタが増加することを検証する。
func TestRecordBroadcastDrop_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBroadcastDrop("room-1")

	val, found := counterValue(t, reg, "murmur_broadcast_drops_total")
	if !found {
		t.Fatal("murmur_broadcast_drops_total metric not found")
	}
	if val != 1 {
		t.Errorf("broadcast_drops_total = %v, want 1", val)
	}
}

// TestRecordHandshakeFailure_IncrementsCounter は認証失敗カウンタが増加することを検証する。
func TestRecordHandshakeFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHandshakeFailure("google")
	c.RecordHandshakeFailure("github")
	c.RecordHandshakeFailure("google")

	val, found := counterValue(t, reg, "murmur_handshake_failures_total")
	if !found {
		t.Fatal("murmur_handshake_failures_total metric not found")
	}
	if val != 3 {
		t.Errorf("handshake_failures_total = %v, want 3", val)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "murmur_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("murmur_http_status_total metric not found")
	}
}

// TestRecordResyncSent_IncrementsCounter はresync送信カウンタが増加することを検証する。
func TestRecordResyncSent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResyncSent()

	val, found := counterValue(t, reg, "murmur_resyncs_sent_total")
	if !found {
		t.Fatal("murmur_resyncs_sent_total metric not found")
	}
	if val != 1 {
		t.Errorf("resyncs_sent_total = %v, want 1", val)
	}
}

// TestLiveConnections_GaugeTracksUpDown はWebSocket接続数のゲージが増減することを検証する。
func TestLiveConnections_GaugeTracksUpDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IncLiveConnections()
	c.IncLiveConnections()
	c.DecLiveConnections()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "murmur_live_connections" {
			found = true
			val := mf.GetMetric()[0].GetGauge().GetValue()
			if val != 1 {
				t.Errorf("live_connections = %v, want 1", val)
			}
		}
	}
	if !found {
		t.Error("murmur_live_connections metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordMessageAppended()
	c.RecordBroadcastDrop("room-1")
	c.RecordHandshakeFailure("google")
	c.RecordHTTPStatus(200)
	c.RecordResyncSent()
	c.IncLiveConnections()

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"murmur_messages_appended_total",
		"murmur_broadcast_drops_total",
		"murmur_handshake_failures_total",
		"murmur_http_status_total",
		"murmur_resyncs_sent_total",
		"murmur_live_connections",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordMessageAppended()
	c2.RecordMessageAppended()
	c2.RecordMessageAppended()

	val1, _ := counterValue(t, reg1, "murmur_messages_appended_total")
	val2, _ := counterValue(t, reg2, "murmur_messages_appended_total")

	if val1 != 1 {
		t.Errorf("reg1 messages_appended = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 messages_appended = %v, want 2", val2)
	}
}
