package stream

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Boundary separates parts of the multipart stream.
const Boundary = "123456789000000000000987654321"

// ErrTransportFailed marks a write to the client that failed. The
// connection is unusable afterwards.
var ErrTransportFailed = errors.New("stream: transport failed")

var (
	streamContentType = "multipart/x-mixed-replace;boundary=" + Boundary
	partBoundary      = []byte("\r\n--" + Boundary + "\r\n")
	openingBoundary   = []byte("--" + Boundary + "\r\n")
)

// ContentType is the response Content-Type of a stream.
func ContentType() string {
	return streamContentType
}

// Transport delivers a stream as independently flushed chunks.
type Transport interface {
	Begin(contentType string) error
	SendChunk(p []byte) error
}

// MultipartWriter is a Transport over an HTTP response.
type MultipartWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewMultipartWriter wraps w.
func NewMultipartWriter(w http.ResponseWriter) *MultipartWriter {
	return &MultipartWriter{w: w, rc: http.NewResponseController(w)}
}

// Begin sends the response headers and the opening delimiter.
func (m *MultipartWriter) Begin(contentType string) error {
	h := m.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Content-Type-Options", "nosniff")
	m.w.WriteHeader(http.StatusOK)
	return m.SendChunk(openingBoundary)
}

// SendChunk writes p and flushes it to the client.
func (m *MultipartWriter) SendChunk(p []byte) error {
	if _, err := m.w.Write(p); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransportFailed, err)
	}
	if err := m.rc.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrTransportFailed, err)
	}
	return nil
}

// WriteFrame sends one part: its headers, the image and the boundary, as
// three chunks. The first failure is returned and nothing more is written.
func WriteFrame(t Transport, payload []byte) error {
	header := "Content-Type: image/jpeg\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n"
	if err := t.SendChunk([]byte(header)); err != nil {
		return err
	}
	if err := t.SendChunk(payload); err != nil {
		return err
	}
	return t.SendChunk(partBoundary)
}
