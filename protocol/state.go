package protocol

// StateReport is the state a strip reported about itself on its state topic. Nil fields were not reported.
type StateReport struct {
	On         *bool
	Brightness *int
}

// StateParser decodes payloads published by a strip on its state topic. The format of those payloads has not been
// worked out yet; a parser returns false for anything it does not understand.
type StateParser interface {
	ParseState(payload []byte) (StateReport, bool)
}

// The StateParserFunc type is an adapter to allow the use of ordinary functions as a StateParser.
type StateParserFunc func([]byte) (StateReport, bool)

func (f StateParserFunc) ParseState(payload []byte) (StateReport, bool) {
	return f(payload)
}

// NopStateParser understands no payloads. It is the default parser for strip controllers.
var NopStateParser StateParser = StateParserFunc(func([]byte) (StateReport, bool) {
	return StateReport{}, false
})
