package resource

import (
	"context"
	"io"
)

// RateLimitedWriter charges every write against the controller's byte rate
// before passing it on.
type RateLimitedWriter struct {
	ctx context.Context
	rc  *Controller
	dst io.Writer
}

// NewRateLimitedWriter wraps w. A nil controller passes writes through.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, rc: rc, dst: w}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.rc.AcquireBytes(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.dst.Write(p)
}

// RateLimitedReader charges the bytes actually read against the
// controller's byte rate.
type RateLimitedReader struct {
	ctx context.Context
	rc  *Controller
	src io.Reader
}

// NewRateLimitedReader wraps r. A nil controller passes reads through.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, rc: rc, src: r}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		if werr := r.rc.AcquireBytes(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
