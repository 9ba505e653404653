package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// frameSource grabs one frame per call.
type frameSource interface {
	Grab(ctx context.Context) ([]byte, error)
}

// frameSink delivers a captured frame to the backend.
type frameSink interface {
	Upload(ctx context.Context, filename string, data []byte) error
}

// Poller grabs a frame on a fixed interval and uploads it. A failed cycle is
// retried after a short delay instead of waiting out the full interval.
type Poller struct {
	camera   frameSource
	uploader frameSink
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller wires a poller over a camera and an uploader.
func NewPoller(camera frameSource, uploader frameSink, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{camera: camera, uploader: uploader, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. The first capture happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("capture poller started", zap.Duration("interval", p.interval))
	delay := time.Duration(0)
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := p.captureOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("capture cycle failed", zap.Error(err))
			delay = retryAfter
			continue
		}
		delay = p.interval
	}
}

func (p *Poller) captureOnce(ctx context.Context) error {
	frame, err := p.camera.Grab(ctx)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("frame_%d.jpg", time.Now().Unix())
	if err := p.uploader.Upload(ctx, filename, frame); err != nil {
		return err
	}
	p.logger.Info("frame uploaded", zap.Int("bytes", len(frame)))
	return nil
}
