package mqtt

import (
	"errors"
	"testing"
)

func TestTopics_ShadowOperations(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"get", topics.ShadowGet("tap-kitchen"), "things/tap-kitchen/shadow/get"},
		{"get accepted", topics.ShadowGetAccepted("tap-kitchen"), "things/tap-kitchen/shadow/get/accepted"},
		{"get rejected", topics.ShadowGetRejected("tap-kitchen"), "things/tap-kitchen/shadow/get/rejected"},
		{"update", topics.ShadowUpdate("tap-kitchen"), "things/tap-kitchen/shadow/update"},
		{"update accepted", topics.ShadowUpdateAccepted("tap-kitchen"), "things/tap-kitchen/shadow/update/accepted"},
		{"update rejected", topics.ShadowUpdateRejected("tap-kitchen"), "things/tap-kitchen/shadow/update/rejected"},
		{"update delta", topics.ShadowUpdateDelta("tap-kitchen"), "things/tap-kitchen/shadow/update/delta"},
		{"update documents", topics.ShadowUpdateDocuments("tap-kitchen"), "things/tap-kitchen/shadow/update/documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_SystemStatus(t *testing.T) {
	if got := (Topics{}).SystemStatus(); got != "shadowcore/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
}

func TestTopics_AllShadowResponses(t *testing.T) {
	if got := (Topics{}).AllShadowResponses("valve-1"); got != "things/valve-1/shadow/+/+" {
		t.Errorf("AllShadowResponses() = %q", got)
	}
}

func TestPublish_ValidatesBeforeConnectionUse(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("things/a/shadow/get", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	oversize := make([]byte, maxPayloadSize+1)
	if err := c.Publish("things/a/shadow/get", oversize, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize payload error = %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("things/a/shadow/get", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_ValidatesBeforeConnectionUse(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("things/a/shadow/get/accepted", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 5 error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("things/a/shadow/get/accepted", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("things/a/shadow/get/accepted", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected subscribe error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribes must not be tracked, count = %d", c.SubscriptionCount())
	}
}

func TestUnsubscribe_Validates(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("things/a/shadow/get"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected unsubscribe error = %v, want ErrNotConnected", err)
	}
}
