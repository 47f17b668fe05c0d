package pickylog

import (
	"strings"
	"testing"
	"time"
)

func TestOperationEventLogsOnFinish(t *testing.T) {
	mockLog := NewMock()
	e := NewOperationEvent("bootstrap.root")
	e.Realm = "Picky"
	e.Name = "Picky Root CA"

	e.Finish(mockLog, time.Now())

	lines := mockLog.GetAll()
	if len(lines) != 1 {
		t.Fatalf("expected exactly one log line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "bootstrap.root") {
		t.Fatalf("expected log line to mention the operation, got %q", lines[0])
	}
}

func TestOperationEventAccumulatesErrors(t *testing.T) {
	e := NewOperationEvent("sign")
	e.AddError("storage unavailable")
	e.AddError("retrying")

	if len(e.InternalErrors) != 2 {
		t.Fatalf("expected 2 accumulated errors, got %d", len(e.InternalErrors))
	}
}
