//go:build !linux

package frame

// newV4L2 falls back to ffmpeg capture where V4L2 is unavailable.
func newV4L2(devicePath string) Source {
	return NewExecSource(devicePath)
}
