package log

// MultiLogger fans events out to several loggers, in order.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines loggers. Nil and no-op loggers are dropped and
// nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	m.add(loggers)
	return m
}

func (m *MultiLogger) add(loggers []Logger) {
	for _, l := range loggers {
		switch l := l.(type) {
		case nil, NoopLogger:
		case *MultiLogger:
			if l != nil {
				m.add(l.sinks)
			}
		default:
			m.sinks = append(m.sinks, l)
		}
	}
}

// Len returns the number of loggers events reach.
func (m *MultiLogger) Len() int {
	return len(m.sinks)
}

// Log forwards event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, sink := range m.sinks {
		sink.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
