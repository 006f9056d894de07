package middleware

import "net/http"

// HTTPStatusRecorder はHTTPステータスの記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type HTTPStatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録する
// ミドルウェアを返す。
func NewMetricsMiddleware(recorder HTTPStatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			recorder.RecordHTTPStatus(rec.statusCode)
		})
	}
}
