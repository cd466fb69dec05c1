package booth

import (
	"context"

	"github.com/fakeyudi/smilebooth/internal/detect"
)

// Backend adapts the detection client plus its health monitor into the
// orchestrator's Detector interface.
type Backend struct {
	Client  *detect.Client
	Monitor *detect.Monitor
}

// NewBackend wires client and monitor together.
func NewBackend(client *detect.Client, monitor *detect.Monitor) *Backend {
	return &Backend{Client: client, Monitor: monitor}
}

func (b *Backend) Poll(ctx context.Context, jpeg []byte) detect.Decision {
	return b.Client.Poll(ctx, jpeg)
}

func (b *Backend) NotifyManual(ctx context.Context, jpeg []byte) error {
	return b.Client.NotifyManual(ctx, jpeg)
}

func (b *Backend) Connected() bool {
	return b.Monitor.Connected()
}
