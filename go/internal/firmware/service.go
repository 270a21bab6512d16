package firmware

import (
	"context"
	"io"
)

// Service creates and runs update sessions against one device.
type Service struct {
	device Device
	cfg    Config
}

func NewService(device Device, cfg Config) *Service {
	return &Service{device: device, cfg: cfg}
}

// Update starts a session in the background and returns it so callers can
// observe state and progress. Cancel the context to abandon the session.
func (f *Service) Update(ctx context.Context, file io.Reader, size int64, cb Callbacks) *Session {
	s := NewSession(f.device, f.cfg, cb)
	go s.Run(ctx, file, size)
	return s
}
