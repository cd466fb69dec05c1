package strip

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveArtifact writes the composed strip into dir under a filename
// derived from the capture timestamp, e.g. smilebooth_20260829_143015.jpg.
// The write goes through a temp file + os.Rename in the same directory
// so a crash never leaves a half-written artifact.
func SaveArtifact(dir string, data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("smilebooth_%s.jpg", now.Format("20060102_150405")))

	tmp, err := os.CreateTemp(dir, "strip-*.jpg.tmp")
	if err != nil {
		return "", fmt.Errorf("saving strip: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("saving strip: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("saving strip: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("saving strip: %w", err)
	}
	return path, nil
}
