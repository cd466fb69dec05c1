package frame

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// ExecSource captures stills by invoking ffmpeg for a single frame.
// It needs no persistent device handle, so Open only verifies that
// ffmpeg is on PATH. Works anywhere ffmpeg can reach a camera.
// Still runs on the driver's IO goroutine while Close is called from
// the update loop, so the open flag is mutex-guarded.
type ExecSource struct {
	Device string // device index or path; empty means the default camera

	mu   sync.Mutex
	open bool
}

// NewExecSource returns an ExecSource for the given device selector.
func NewExecSource(device string) *ExecSource {
	return &ExecSource{Device: device}
}

// Open verifies ffmpeg availability.
func (s *ExecSource) Open(ctx context.Context) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("camera unavailable: ffmpeg not found in PATH: %w", err)
	}
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

// Still captures one frame and encodes it as JPEG, applying filter.
func (s *ExecSource) Still(filter Filter) (*Frame, error) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return nil, fmt.Errorf("source not open")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd, err := s.captureCmd(ctx)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg capture failed: %w (stderr: %s)", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}

	data, err := filter.ApplyJPEG(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return &Frame{Data: data, Filter: filter, TakenAt: time.Now()}, nil
}

// Close releases nothing for the exec source but keeps the release
// discipline observable.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

func (s *ExecSource) captureCmd(ctx context.Context) (*exec.Cmd, error) {
	size := fmt.Sprintf("%dx%d", Width, Height)
	device := s.Device

	switch runtime.GOOS {
	case "linux":
		if device == "" {
			device = "/dev/video0"
		}
		return exec.CommandContext(ctx, "ffmpeg",
			"-f", "v4l2", "-video_size", size, "-i", device,
			"-vframes", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-"), nil
	case "darwin":
		if device == "" {
			device = "0"
		}
		return exec.CommandContext(ctx, "ffmpeg",
			"-f", "avfoundation", "-video_size", size, "-framerate", "30", "-i", device,
			"-vframes", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-"), nil
	default:
		return nil, fmt.Errorf("no capture backend for %s", runtime.GOOS)
	}
}
