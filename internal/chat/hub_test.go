// internal/chat/hub_test.go

package chat

import (
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
)

func TestUnregisterAfterShutdownDoesNotBlock(t *testing.T) {
    hub := NewHub(newTestService(newMemStore()), nil)
    go hub.Run()

    sess := testSession("late", 4)
    sess.hub = hub
    hub.register <- sess
    hub.Shutdown()

    // The run loop is gone; a disconnecting pump must still return
    done := make(chan struct{})
    go func() {
        hub.requestUnregister(sess)
        close(done)
    }()

    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("unregister blocked after shutdown")
    }
}

func TestDuplicateUnregisterKeepsGaugeBalanced(t *testing.T) {
    hub := NewHub(newTestService(newMemStore()), nil)
    sess := testSession("dup", 9)
    sess.hub = hub

    before := testutil.ToFloat64(activeConnections)
    hub.registerSession(sess)
    assert.Equal(t, before+1, testutil.ToFloat64(activeConnections))

    // A readPump disconnect and a full-buffer eviction can both hand
    // the same session back; the second pass must change nothing
    hub.unregisterSession(sess)
    hub.unregisterSession(sess)
    assert.Equal(t, before, testutil.ToFloat64(activeConnections))

    hub.Shutdown()
}

func TestNewSessionAppliesTimeoutDefaults(t *testing.T) {
    sess := NewSession(nil, nil, 1, nil, SessionConfig{})
    assert.Equal(t, defaultWriteTimeout, sess.cfg.WriteTimeout)
    assert.Equal(t, defaultPongTimeout, sess.cfg.PongTimeout)

    sess = NewSession(nil, nil, 1, nil, SessionConfig{
        WriteTimeout: 3 * time.Second,
        PongTimeout:  30 * time.Second,
    })
    assert.Equal(t, 3*time.Second, sess.cfg.WriteTimeout)
    assert.Equal(t, 30*time.Second, sess.cfg.PongTimeout)
}
