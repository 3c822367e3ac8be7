package signals

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func raiseSoon(sig syscall.Signal) {
	time.AfterFunc(50*time.Millisecond, func() {
		_ = syscall.Kill(syscall.Getpid(), sig)
	})
}

func closedWithin(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func TestSetupStopsOnShutdownSignals(t *testing.T) {
	for _, sig := range []syscall.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			stopCh := make(chan struct{})
			ctx := Setup(stopCh)
			raiseSoon(sig)

			require.True(t, closedWithin(stopCh, 500*time.Millisecond), "stopCh not closed")
			require.True(t, closedWithin(ctx.Done(), 500*time.Millisecond), "context not cancelled")
		})
	}
}

func TestSetupToleratesClosedStopCh(t *testing.T) {
	stopCh := make(chan struct{})
	close(stopCh)
	ctx := Setup(stopCh)
	raiseSoon(syscall.SIGTERM)

	require.True(t, closedWithin(ctx.Done(), 500*time.Millisecond))
}

func TestReloadSIGHUP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reload := Reload(ctx)
	raiseSoon(syscall.SIGHUP)

	require.True(t, closedWithin(reload, 500*time.Millisecond), "no reload after SIGHUP")
}
