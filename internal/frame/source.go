package frame

import "strings"

// NewSource builds a Source from a config device selector:
//
//	""            default ffmpeg capture
//	"v4l2:<path>" direct V4L2 streaming (Linux only)
//	"dir:<path>"  watch a drop directory for frames
//	anything else ffmpeg capture from the named device
func NewSource(selector string) Source {
	switch {
	case strings.HasPrefix(selector, "dir:"):
		return NewWatchDirSource(strings.TrimPrefix(selector, "dir:"))
	case strings.HasPrefix(selector, "v4l2:"):
		return newV4L2(strings.TrimPrefix(selector, "v4l2:"))
	default:
		return NewExecSource(selector)
	}
}
