package web

import (
	"net/http"
	"time"

	"genai-studio/common"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests 记录每个请求的方法、路径、状态码和耗时
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := common.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
		// 前端轮询状态很频繁，只在 debug 级别输出
		if r.Method == http.MethodGet {
			entry.Debug("HTTP request")
		} else {
			entry.Info("HTTP request")
		}
	})
}
