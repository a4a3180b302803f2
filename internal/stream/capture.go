package stream

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Capture serves a single JPEG. Capture or encode failures answer 500 with
// no body.
func Capture(w http.ResponseWriter, src FrameSource, conv WireFormatter, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	f, err := src.Acquire()
	if err != nil {
		logger.Warn("camera capture failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	defer func() {
		if err := src.Release(f); err != nil {
			logger.Error("frame release failed", zap.Uint64("seq", f.Seq), zap.Error(err))
		}
	}()

	payload, err := conv.EnsureWireFormat(f)
	if err != nil {
		logger.Warn("JPEG compression failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	defer payload.Release()

	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Disposition", "inline; filename=capture.jpg")
	h.Set("Content-Length", strconv.Itoa(payload.Len()))
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(payload.Bytes()); err != nil {
		logger.Info("capture not delivered", zap.String("cause", disconnectCause(err)), zap.Error(err))
		return err
	}

	logger.Info("JPG",
		zap.Uint64("seq", f.Seq),
		zap.Int("bytes", payload.Len()),
		zap.Stringer("ownership", payload.Ownership()),
		zap.Int64("ms", time.Since(start).Milliseconds()))
	return nil
}
