package bus

import "strings"

// MatchTopic reports whether topic matches an MQTT-style pattern using the
// standard '+' (single level) and '#' (remaining levels) wildcards. Used by
// Dispatcher.Route to pick the handler for an inbound message independent of
// whatever filtering the broker itself already applied -- keeping routing
// testable without a live broker.
func MatchTopic(pattern, topic string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(topic, "/")

	for i, p := range pSegs {
		if p == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if p == "+" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}
