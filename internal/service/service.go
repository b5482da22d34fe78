//go:build windows

// Package service provides Windows Service integration.
// When running as a Windows service, the monitor enters the SCM control loop.
// When running from a terminal, it runs in foreground.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// Name is the SCM service name.
const Name = "SholHealer"

// ErrNotSupported is returned by Install and Uninstall on platforms without
// a service manager integration. Never returned on Windows.
var ErrNotSupported = errors.New("service registration is only supported on Windows")

// stopGrace bounds how long a stop request waits for the loops to finish.
const stopGrace = 15 * time.Second

// Service implements the Windows service interface (svc.Handler).
type Service struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a new Windows service wrapper.
// The startFn is called with a cancellable context when the service starts
// and must return once that context is done.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *Service {
	return &Service{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService checks if the process is running as a Windows service.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run starts the Windows service control loop.
func (s *Service) Run() error {
	return svc.Run(Name, s)
}

// Execute implements the svc.Handler interface for Windows SCM integration.
func (s *Service) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.startFn(ctx)
	}()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case <-done:
			s.logger.Warn("Monitor exited on its own, stopping service")
			return false, 1
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-done:
				case <-time.After(stopGrace):
					s.logger.Warn("Loops did not stop in time", zap.Duration("grace", stopGrace))
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}

// Install registers exePath with the service control manager as an
// automatically started service. args are passed to the executable on start.
func Install(exePath string, args ...string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	if existing, err := m.OpenService(Name); err == nil {
		existing.Close()
		return fmt.Errorf("service %s is already installed", Name)
	}

	s, err := m.CreateService(Name, exePath, mgr.Config{
		DisplayName: "Shol self-healing process monitor",
		Description: "Detects unresponsive or resource-hungry processes and recovers them.",
		StartType:   mgr.StartAutomatic,
	}, args...)
	if err != nil {
		return fmt.Errorf("creating service %s: %w", Name, err)
	}
	return s.Close()
}

// Uninstall removes the service registration.
func Uninstall() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(Name)
	if err != nil {
		return fmt.Errorf("service %s is not installed: %w", Name, err)
	}
	defer s.Close()
	if err := s.Delete(); err != nil {
		return fmt.Errorf("deleting service %s: %w", Name, err)
	}
	return nil
}
