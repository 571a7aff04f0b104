package protocol

const (
	// MinBrightness and MaxBrightness bound the brightness scale used by Home Assistant.
	MinBrightness = 0
	MaxBrightness = 255
)

// brightnessBuckets maps the upper bound (inclusive, in percent) of each range to the frame sent for it.
var brightnessBuckets = []struct {
	maxPercent int
	command    Command
}{
	{maxPercent: 10, command: CommandBrightness10},
	{maxPercent: 35, command: CommandBrightness25},
	{maxPercent: 60, command: CommandBrightness50},
	{maxPercent: 85, command: CommandBrightness75},
}

// EncodeOn returns the frame that switches a strip on at its last brightness.
func EncodeOn() Frame {
	return FrameFor(CommandOn)
}

// EncodeOff returns the frame that switches a strip off.
func EncodeOff() Frame {
	return FrameFor(CommandOff)
}

// EncodeBrightness returns the captured brightness frame closest to level. See BrightnessCommand for how the frame is
// chosen.
func EncodeBrightness(level int) Frame {
	return FrameFor(BrightnessCommand(level))
}

// ClampBrightness limits level to [MinBrightness, MaxBrightness].
func ClampBrightness(level int) int {
	return min(max(level, MinBrightness), MaxBrightness)
}

// BrightnessCommand selects the brightness frame for level on a 0-255 scale. Values outside that range are clamped.
// The level is converted to a percentage p and matched against these ranges:
//
//	p <= 10       10%
//	10 < p <= 35  25%
//	35 < p <= 60  50%
//	60 < p <= 85  75%
//	p > 85        100%
func BrightnessCommand(level int) Command {
	level = ClampBrightness(level)

	// p <= limit  <=>  level*100 <= limit*255, which avoids rounding at the boundaries.
	for _, b := range brightnessBuckets {
		if level*100 <= b.maxPercent*MaxBrightness {
			return b.command
		}
	}

	return CommandBrightness100
}
