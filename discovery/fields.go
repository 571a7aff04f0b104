package discovery

import (
	"strings"

	"github.com/nlowe/techlife/mqtt"
)

// Constants for the device discovery payload and fields shared by all platforms
const (
	FieldDevice     = "dev"
	FieldOrigin     = "o"
	FieldComponents = "cmps"

	FieldPlatform = "p"
	FieldName     = "name"
	FieldUniqueID = "uniq_id"

	FieldAvailabilityTopic = "avty_t"

	FieldStateTopic   = "stat_t"
	FieldCommandTopic = "cmd_t"

	FieldOnCommandType = "on_cmd_type"

	FieldQualityOfService = "qos"
	FieldRetain           = "ret"
)

// Constants for the light platform
const (
	FieldSupportedColorModes = "sup_clrm"

	FieldBrightnessCommandTopic = "bri_cmd_t"
	FieldBrightnessStateTopic   = "bri_stat_t"
)

// IDSep is the separator used to separate various parts of a device ID. It is also used as a replacement for tokens
// that are not allowed in an ID string.
const IDSep = "__"

// IDSanitizer is a strings.Replacer that sanitizes a device ID for use in an MQTT Topic.
var IDSanitizer = strings.NewReplacer(
	" ", IDSep,
	":", IDSep,
	".", IDSep,
	"!", IDSep,
	"?", IDSep,
	mqtt.SingleLevelWildcard, IDSep,
	mqtt.MultiLevelWildcard, IDSep,
	mqtt.TopicSeparator, IDSep,
)
