//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the monitor runs as a foreground process under the
// init system; the Windows service wrapper is not needed.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Name is the service name used on Windows.
const Name = "SholHealer"

// Service is a pass-through wrapper for non-Windows platforms.
type Service struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *Service {
	return &Service{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the monitor directly.
func (s *Service) Run() error {
	s.startFn(context.Background())
	return nil
}

// ErrNotSupported reports that this platform has no service manager
// integration.
var ErrNotSupported = errors.New("service registration is only supported on Windows")

// Install always fails; a systemd unit or launchd job should run the
// monitor instead.
func Install(exePath string, args ...string) error {
	return fmt.Errorf("%w: have systemd or launchd run %q with %v", ErrNotSupported, exePath, args)
}

// Uninstall always fails outside Windows.
func Uninstall() error {
	return ErrNotSupported
}
