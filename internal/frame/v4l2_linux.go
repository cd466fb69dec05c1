//go:build linux

package frame

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Source streams MJPEG frames from a V4L2 device and serves the
// most recent one on demand. Preferred over ExecSource on Linux when
// the device supports MJPEG directly. Still runs on the driver's IO
// goroutine while Close is called from the update loop, so the stream
// state is mutex-guarded.
type V4L2Source struct {
	Device string

	mu     sync.Mutex
	dev    *device.Device
	frames <-chan []byte
	stop   context.CancelFunc
}

// NewV4L2Source returns a source for the given /dev/video* path.
func NewV4L2Source(devicePath string) *V4L2Source {
	if devicePath == "" {
		devicePath = "/dev/video0"
	}
	return &V4L2Source{Device: devicePath}
}

// Open acquires the device and starts streaming.
func (s *V4L2Source) Open(ctx context.Context) error {
	dev, err := device.Open(
		s.Device,
		device.WithBufferSize(2),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       Width,
			Height:      Height,
		}),
	)
	if err != nil {
		return fmt.Errorf("camera unavailable: %s: %w", s.Device, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(streamCtx); err != nil {
		cancel()
		dev.Close()
		return fmt.Errorf("camera unavailable: starting stream on %s: %w", s.Device, err)
	}

	s.mu.Lock()
	s.dev = dev
	s.frames = dev.GetOutput()
	s.stop = cancel
	s.mu.Unlock()
	return nil
}

// Still reads the next streamed frame, applying filter. A concurrent
// Close closes the output channel, which reads here as ErrNoFrame.
func (s *V4L2Source) Still(filter Filter) (*Frame, error) {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()
	if frames == nil {
		return nil, fmt.Errorf("source not open")
	}

	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()

	select {
	case raw, ok := <-frames:
		if !ok || len(raw) == 0 {
			return nil, ErrNoFrame
		}
		// The buffer is recycled by the driver; copy before returning.
		data := make([]byte, len(raw))
		copy(data, raw)
		filtered, err := filter.ApplyJPEG(data)
		if err != nil {
			return nil, err
		}
		return &Frame{Data: filtered, Filter: filter, TakenAt: time.Now()}, nil
	case <-timer.C:
		return nil, ErrNoFrame
	}
}

// Close stops streaming and releases the device.
func (s *V4L2Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if s.dev != nil {
		err := s.dev.Close()
		s.dev = nil
		s.frames = nil
		return err
	}
	return nil
}

func newV4L2(devicePath string) Source {
	return NewV4L2Source(devicePath)
}
