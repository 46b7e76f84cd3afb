package kafka

import "strings"

// Topics maps event names to their topics.
func Topics(prefix string, events []string) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, prefix+e)
	}
	return out
}

// EventFromTopic strips prefix; ok is false for topics outside it.
func EventFromTopic(prefix, topic string) (string, bool) {
	ev, ok := strings.CutPrefix(topic, prefix)
	if !ok || ev == "" {
		return "", false
	}
	return ev, true
}
