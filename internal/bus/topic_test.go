package bus

import (
	"context"
	"testing"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"site/+/rack/+/telemetry", "site/dc1/rack/a1/telemetry", true},
		{"site/+/rack/+/telemetry", "site/dc1/rack/a1/receipt", false},
		{"ctrl/+/receipt", "ctrl/dev-1/receipt", true},
		{"ctrl/+/receipt", "ctrl/dev-1/nested/receipt", false},
		{"discover/#", "discover/results", true},
		{"discover/#", "discover/raw", true},
		{"discover/raw", "discover/results", false},
	}
	for _, c := range cases {
		if got := MatchTopic(c.pattern, c.topic); got != c.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", c.pattern, c.topic, got, c.want)
		}
	}
}

func TestDispatcherRoute(t *testing.T) {
	d := &Dispatcher{}
	var got []string
	d.Register("site/+/rack/+/telemetry", func(_ context.Context, topic string, _ []byte) {
		got = append(got, topic)
	})
	d.Route(context.Background(), "site/dc1/rack/a1/telemetry", []byte(`{}`))
	if len(got) != 1 || got[0] != "site/dc1/rack/a1/telemetry" {
		t.Fatalf("unexpected routed topics: %v", got)
	}
}
