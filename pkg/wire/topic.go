package wire

import "strings"

// Topic wildcards.
const (
	// SingleLevelWildcard matches exactly one topic level.
	SingleLevelWildcard = "+"

	// MultiLevelWildcard matches any number of trailing levels.
	MultiLevelWildcard = "#"

	// TopicSeparator separates topic levels.
	TopicSeparator = "/"
)

// ValidTopic reports whether topic can be published to.
func ValidTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#\x00")
}

// ValidFilter reports whether filter is a valid subscription filter.
func ValidFilter(filter string) bool {
	if filter == "" || strings.ContainsRune(filter, '\x00') {
		return false
	}
	levels := strings.Split(filter, TopicSeparator)
	for i, level := range levels {
		switch {
		case level == MultiLevelWildcard:
			if i != len(levels)-1 {
				return false
			}
		case level == SingleLevelWildcard:
		case strings.ContainsAny(level, "+#"):
			return false
		}
	}
	return true
}

// MatchTopic reports whether topic matches filter.
func MatchTopic(filter, topic string) bool {
	for {
		var f, t string
		fi := strings.Index(filter, TopicSeparator)
		if fi < 0 {
			f, filter = filter, ""
		} else {
			f, filter = filter[:fi], filter[fi+1:]
		}

		if f == MultiLevelWildcard {
			return true
		}

		ti := strings.Index(topic, TopicSeparator)
		if ti < 0 {
			t, topic = topic, ""
		} else {
			t, topic = topic[:ti], topic[ti+1:]
		}

		if f != SingleLevelWildcard && f != t {
			return false
		}

		filterDone := fi < 0
		topicDone := ti < 0
		switch {
		case filterDone && topicDone:
			return true
		case topicDone:
			// "a/#" also matches "a".
			return filter == MultiLevelWildcard
		case filterDone:
			return false
		}
	}
}
