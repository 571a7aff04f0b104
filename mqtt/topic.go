package mqtt

import "strings"

const (
	TopicSeparator = "/"

	// SingleLevelWildcard matches exactly one topic level in a subscription filter.
	SingleLevelWildcard = "+"
	// MultiLevelWildcard matches any number of trailing topic levels in a subscription filter.
	MultiLevelWildcard = "#"
)

// TrimTopic trims TopicSeparator from the start and end of the specified topic.
func TrimTopic(topic string) string {
	return strings.Trim(topic, TopicSeparator)
}

// JoinTopic joins non-empty component parts with TopicSeparator, trimming each part as it is appended.
func JoinTopic(parts ...string) string {
	var result strings.Builder

	for _, part := range parts {
		part = TrimTopic(part)
		if part == "" {
			continue
		}

		if result.Len() > 0 {
			result.WriteString(TopicSeparator)
		}
		result.WriteString(part)
	}

	return result.String()
}

// MatchTopic reports whether topic is matched by the subscription filter. Wildcards are only recognized when they
// occupy a whole level, so a filter like "dev_pub_+" matches nothing but the literal topic "dev_pub_+".
func MatchTopic(filter, topic string) bool {
	fl := strings.Split(filter, TopicSeparator)
	tl := strings.Split(topic, TopicSeparator)

	for i, f := range fl {
		if f == MultiLevelWildcard {
			return i == len(fl)-1
		}

		if i >= len(tl) {
			return false
		}

		if f != SingleLevelWildcard && f != tl[i] {
			return false
		}
	}

	return len(fl) == len(tl)
}
