package shadow

import (
	"testing"
	"time"
)

func TestFleet_AddAndLookup(t *testing.T) {
	fleet := NewFleet()

	conn := newFakeConn()
	dev := newTestDevice(t, conn)
	fleet.Add(dev)

	got, ok := fleet.Device(testThing)
	if !ok || got != dev {
		t.Errorf("Device(%q) = %v, %v", testThing, got, ok)
	}
	if _, ok := fleet.Device("ghost"); ok {
		t.Error("Device(ghost) found unexpectedly")
	}
	if fleet.Len() != 1 {
		t.Errorf("Len() = %d, want 1", fleet.Len())
	}
}

func TestFleet_ResyncAll(t *testing.T) {
	fleet := NewFleet()

	conn := newFakeConn()
	dev := newTestDevice(t, conn)
	fleet.Add(dev)

	answerSnapshot(t, conn, ShadowState{
		Reported: mustDoc(t, map[string]any{"v": 1}),
	})

	fleet.ResyncAll()
	waitFor(t, time.Second, "resync snapshot request", func() bool {
		return conn.stateTokenCount() == 2
	})
}
