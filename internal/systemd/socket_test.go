package systemd

import (
	"context"
	"testing"
)

func TestGetListenersWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners: %v", err)
	}
	if listeners.Activated {
		t.Fatal("expected no socket activation")
	}
	if listeners.Control != nil || listeners.Metrics != nil {
		t.Fatal("expected nil listeners")
	}
}

func TestNotifyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if err := NotifyReady(); err != nil {
		t.Fatalf("NotifyReady: %v", err)
	}
	if err := NotifyStatus("tracking worker-1"); err != nil {
		t.Fatalf("NotifyStatus: %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Fatalf("NotifyStopping: %v", err)
	}
}

func TestRunWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	if err := RunWatchdog(context.Background()); err != nil {
		t.Fatalf("RunWatchdog: %v", err)
	}
}
