package discovery

import (
	"errors"
	"fmt"

	"github.com/nlowe/techlife/mqtt"
)

var (
	// ErrValueRequired is the error returned by Put functions for values that hold the type's associated zero value.
	ErrValueRequired = errors.New("value is required")
	// ErrTopicRequired is the error returned by PutRequiredTopic, PutRequiredValueTopic, and
	// PutRequiredRemoteValueTopic when the provided topic is empty (usually because the required value is nil).
	ErrTopicRequired = errors.New("topic is required")
	// ErrMissingStateOrCommandTopic is the error returned by PutStateAndCommandTopics if either the state topic or the
	// command topic (but not both) are specified.
	ErrMissingStateOrCommandTopic = errors.New("state and command topics must both be configured")
)

// Payload is a discovery payload (or part of one) under construction. It marshals with encoding/json.
type Payload map[string]any

// PutRequiredTopic sets k to topic. It returns ErrTopicRequired if the topic is the empty string.
func PutRequiredTopic(name string, p Payload, k string, topic string) error {
	if topic == "" {
		return fmt.Errorf("%s: %w", name, ErrTopicRequired)
	}

	p[k] = topic
	return nil
}

// PutRequiredValueTopic sets k to the topic of the provided mqtt.Value. It returns ErrTopicRequired if the value is
// nil or has no configured topic.
func PutRequiredValueTopic[T any](name string, p Payload, k string, v *mqtt.Value[T], prefix string) error {
	return PutRequiredTopic(name, p, k, v.FullyQualifiedTopic(prefix))
}

// PutRequiredRemoteValueTopic sets k to the topic of the provided mqtt.RemoteValue. It returns ErrTopicRequired if
// the value is nil or has no configured topic.
func PutRequiredRemoteValueTopic[T any](name string, p Payload, k string, v *mqtt.RemoteValue[T], prefix string) error {
	return PutRequiredTopic(name, p, k, v.FullyQualifiedTopic(prefix))
}

// PutMaybeTopic sets k to topic if the topic string is not empty.
func PutMaybeTopic(p Payload, k string, topic string) {
	if topic != "" {
		p[k] = topic
	}
}

// PutMaybeValueTopic sets k to the topic of the provided mqtt.Value if it is configured.
func PutMaybeValueTopic[T any](p Payload, k string, v *mqtt.Value[T], prefix string) {
	PutMaybeTopic(p, k, v.FullyQualifiedTopic(prefix))
}

// PutStateAndCommandTopics sets the specified state (mqtt.Value) and command (mqtt.RemoteValue) topics if they are not
// nil. If one is not nil, the other must also not be nil.
func PutStateAndCommandTopics[T any](name string, p Payload, sk string, s *mqtt.Value[T], ck string, c *mqtt.RemoteValue[T], prefix string) error {
	if s == nil && c == nil {
		return nil
	}

	if s == nil || c == nil {
		return fmt.Errorf("%s: %w", name, ErrMissingStateOrCommandTopic)
	}

	return errors.Join(
		PutRequiredValueTopic(name, p, sk, s, prefix),
		PutRequiredRemoteValueTopic(name, p, ck, c, prefix),
	)
}

// PutRequired sets k to v. If v is equal to the type's zero value, it returns ErrValueRequired.
func PutRequired[T comparable](name string, p Payload, k string, v T) error {
	var zero T
	if v == zero {
		return fmt.Errorf("%s: %w", name, ErrValueRequired)
	}

	p[k] = v
	return nil
}

// PutMaybe sets k to v if v is not equal to the type's zero value.
func PutMaybe[T comparable](p Payload, k string, v T) {
	var zero T
	if v != zero {
		p[k] = v
	}
}

// PutIfNot sets k to v if v is neither equal to not nor the type's zero value. Used for fields where Home Assistant
// already assumes a default.
func PutIfNot[T comparable](not T, p Payload, k string, v T) {
	var zero T
	if v != not && v != zero {
		p[k] = v
	}
}

// PutMaybeSlice sets k to v if it is not empty.
func PutMaybeSlice[T any](p Payload, k string, v []T) {
	if len(v) > 0 {
		p[k] = v
	}
}
