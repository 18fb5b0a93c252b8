package systemd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	Control   net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors
// Returns nil listeners if not running under socket activation
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{
		Activated: false,
	}

	// Check if systemd socket activation is available
	fds := activation.Files(false) // false = don't unset env vars
	if len(fds) == 0 {
		return listeners, nil
	}

	listeners.Activated = true

	// Names come from FileDescriptorName= in fieldtrack.socket (systemd 227+)
	listenersMap, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := listenersMap["control"]; ok && len(lns) > 0 {
		listeners.Control = lns[0]
	}

	if lns, ok := listenersMap["metrics"]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}

	return listeners, nil
}

// NotifyReady sends READY=1 notification to systemd
// This tells systemd that the service has finished starting up
func NotifyReady() error {
	// sent is false when not running under systemd, which is not an error
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
// This tells systemd that the service is shutting down
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyStatus publishes a one-line status shown by systemctl status.
func NotifyStatus(status string) error {
	if _, err := daemon.SdNotify(false, "STATUS="+status); err != nil {
		return fmt.Errorf("failed to send sd_notify status: %w", err)
	}
	return nil
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is done. It returns immediately when the watchdog is disabled.
func RunWatchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("failed to read watchdog settings: %w", err)
	}
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				return fmt.Errorf("failed to send sd_notify watchdog: %w", err)
			}
		}
	}
}
