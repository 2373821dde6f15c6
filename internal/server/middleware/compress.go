package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/snappy"
)

// EncodingSnappy значение Content-Encoding для тел, сжатых snappy (block format)
const EncodingSnappy = "snappy"

// maxCompressedBody предел сжатого тела запроса
const maxCompressedBody = 32 << 20

// bufferedWriter копит ответ, чтобы сжать его целиком
type bufferedWriter struct {
	http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func (bw *bufferedWriter) WriteHeader(code int) {
	if bw.statusCode == 0 {
		bw.statusCode = code
	}
}

func (bw *bufferedWriter) Write(b []byte) (int, error) {
	return bw.buf.Write(b)
}

// SnappyMiddleware распаковывает тела запросов с Content-Encoding: snappy
// и сжимает ответы клиентам, приславшим Accept-Encoding: snappy.
// Websocket upgrade пропускается без изменений.
func SnappyMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}

			if strings.EqualFold(r.Header.Get("Content-Encoding"), EncodingSnappy) {
				compressed, err := io.ReadAll(io.LimitReader(r.Body, maxCompressedBody+1))
				if err != nil {
					logger.Warn("Failed to read compressed body", "error", err)
					writeError(w, http.StatusBadRequest, "invalid request body", "failed to read body")
					return
				}
				if len(compressed) > maxCompressedBody {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
					return
				}
				body, err := snappy.Decode(nil, compressed)
				if err != nil {
					logger.Warn("Failed to decompress request body", "error", err)
					writeError(w, http.StatusBadRequest, "invalid request body", "malformed snappy body")
					return
				}
				_ = r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(body))
				r.ContentLength = int64(len(body))
				r.Header.Del("Content-Encoding")
			}

			if !acceptsSnappy(r) {
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferedWriter{ResponseWriter: w}
			next.ServeHTTP(bw, r)

			status := bw.statusCode
			if status == 0 {
				status = http.StatusOK
			}
			encoded := snappy.Encode(nil, bw.buf.Bytes())
			w.Header().Set("Content-Encoding", EncodingSnappy)
			w.Header().Set("Content-Length", strconv.Itoa(len(encoded)))
			w.Header().Add("Vary", "Accept-Encoding")
			w.WriteHeader(status)
			if _, err := w.Write(encoded); err != nil {
				logger.Warn("Failed to write compressed response", "error", err)
			}
		})
	}
}

func acceptsSnappy(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, EncodingSnappy) {
			return true
		}
	}
	return false
}
