package filter

import "net/http"

// ResponseWriter records the status and size of a response.
type ResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader captures the status code. Informational responses other
// than 101 are passed through without being recorded, so the final status
// still reaches the client. After that only the first call is forwarded.
func (rw *ResponseWriter) WriteHeader(code int) {
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		if rw.status == 0 {
			rw.ResponseWriter.WriteHeader(code)
		}
		return
	}
	if rw.status != 0 {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size. A write without a status sends 200
// explicitly, since wrapped writers may hold a different default.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

// Flush implements http.Flusher for streamed upstream responses.
func (rw *ResponseWriter) Flush() {
	if rw.status == 0 {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Status returns the status sent, or 0 if nothing was written.
func (rw *ResponseWriter) Status() int {
	return rw.status
}

// Size returns the number of body bytes written.
func (rw *ResponseWriter) Size() int64 {
	return rw.size
}

// Written reports whether the response has been started.
func (rw *ResponseWriter) Written() bool {
	return rw.status != 0
}
