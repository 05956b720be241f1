package reactor

import (
	"fmt"
	"sync"
)

// stringFactory decodes a frame's body as UTF-8 text, shared by every
// test in this package that needs a MessageFactory[string].
type stringFactory struct{}

func (stringFactory) HeaderSize() int { return 4 }

func (stringFactory) Create(body []byte) (Message[string], error) {
	return Message[string]{Value: string(body)}, nil
}

// recordingLogger captures every Printf call for assertion instead of
// writing to the standard logger.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func (l *recordingLogger) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	return l.lines[len(l.lines)-1]
}
