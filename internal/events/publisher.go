package events

// Handler receives a single published payload.
type Handler func(payload any) error

// Publisher is the topic-oriented view of an Emitter.
type Publisher interface {
	Subscribe(topic string, handler Handler)
	Publish(topic string, payload any) error
}

// Subscribe registers handler under topic. It is On with a one-argument
// listener; a Publish with no payload delivers nil.
func (e *Emitter) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	e.On(topic, func(args ...any) error {
		var payload any
		if len(args) > 0 {
			payload = args[0]
		}
		return handler(payload)
	})
}

// Publish emits payload under topic.
func (e *Emitter) Publish(topic string, payload any) error {
	return e.Emit(topic, payload)
}

var _ Publisher = (*Emitter)(nil)
