// Package strip controls a single TechLife Pro LED strip over MQTT. A strip publishes on dev_pub_{id} and listens for
// command frames on dev_sub_{id}.
package strip

import (
	"regexp"
	"strings"
)

const (
	// StateTopicPrefix prefixes the topic a strip publishes to. Seeing traffic on it is how strips are discovered.
	StateTopicPrefix = "dev_pub_"
	// CommandTopicPrefix prefixes the topic a strip reads command frames from.
	CommandTopicPrefix = "dev_sub_"

	uniqueIDPrefix = "techlife_"

	Manufacturer = "TechLife"
	Model        = "Pro LED Strip"
)

// ID identifies one physical strip. It is the part of the strip's topics after the last underscore.
type ID string

// ParseID extracts the strip ID from a topic: the segment after the final underscore. It returns false if the topic
// has no underscore or nothing follows it.
func ParseID(topic string) (ID, bool) {
	i := strings.LastIndex(topic, "_")
	if i < 0 || i == len(topic)-1 {
		return "", false
	}

	return ID(topic[i+1:]), true
}

// StateTopic is the topic the strip publishes its state to.
func (id ID) StateTopic() string {
	return StateTopicPrefix + string(id)
}

// CommandTopic is the topic command frames for the strip are published to.
func (id ID) CommandTopic() string {
	return CommandTopicPrefix + string(id)
}

// UniqueID is the stable entity id for the strip.
func (id ID) UniqueID() string {
	return Slugify(uniqueIDPrefix + string(id))
}

// Name is the human-readable name of the strip.
func (id ID) Name() string {
	return "TechLife Strip " + string(id)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and replaces every run of characters other than a-z and 0-9 with a single underscore,
// trimming underscores from both ends. It produces ids that are safe in entity ids and MQTT topics.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// Info is the static metadata shown for a strip.
type Info struct {
	Name         string
	Manufacturer string
	Model        string
}

// Info returns the static metadata for the strip.
func (id ID) Info() Info {
	return Info{
		Name:         id.Name(),
		Manufacturer: Manufacturer,
		Model:        Model,
	}
}
