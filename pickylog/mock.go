package pickylog

import (
	"fmt"
	"sync"
)

// MockLogger captures log lines in memory, for assertions in tests.
type MockLogger struct {
	mu    sync.Mutex
	lines []string
}

// NewMock returns an empty MockLogger.
func NewMock() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) add(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

// GetAll returns every captured line, in order.
func (m *MockLogger) GetAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.add("INFO: " + fmt.Sprintf(format, args...))
}

func (m *MockLogger) Warningf(format string, args ...interface{}) {
	m.add("WARNING: " + fmt.Sprintf(format, args...))
}

func (m *MockLogger) AuditErr(msg string) {
	m.add("AUDIT-ERR: " + msg)
}

func (m *MockLogger) AuditErrf(format string, args ...interface{}) {
	m.add("AUDIT-ERR: " + fmt.Sprintf(format, args...))
}

func (m *MockLogger) AuditObject(msg string, obj interface{}) {
	m.add(fmt.Sprintf("AUDIT-OBJECT: %s: %+v", msg, obj))
}
