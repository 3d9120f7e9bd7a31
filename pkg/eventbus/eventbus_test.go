package eventbus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/jciecuador/workspace-console/pkg/logging"
)

type testEvent struct {
	data string
}

type otherEvent struct {
	data string
}

func TestPublisher_Publish_NoMatchLogsWarning(t *testing.T) {
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)
	log.SetLevel(logrus.WarnLevel)

	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *testEvent) {
		t.Error("should not be called")
	})
	publisher.Publish(&otherEvent{data: "test"})

	if output := logBuffer.String(); output == "" {
		t.Error("should have logged")
	} else if !strings.Contains(output, "no matching subscribers") {
		t.Errorf("should have contained no matching subscribers but got: %q", output)
	}
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	called := false
	var data string
	publisher.Subscribe(func(e *testEvent) {
		called = true
		data = e.data
	})
	publisher.Publish(&testEvent{data: "test"})
	if !called {
		t.Error("should be called")
	}
	if data != "test" {
		t.Errorf("expected: %v, got: %v", "test", data)
	}
}

func TestPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.ErrorLevel))
	handler := func(e *testEvent) {
		t.Error("should not be called after unsubscribe")
	}
	publisher.Subscribe(handler)
	if publisher.SubscribersCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", publisher.SubscribersCount())
	}
	publisher.Unsubscribe(handler)
	if publisher.SubscribersCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", publisher.SubscribersCount())
	}
	publisher.Publish(&testEvent{data: "test"})
}

func TestPublisher_HandlerPanicIsContained(t *testing.T) {
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)

	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *testEvent) {
		panic("handler exploded")
	})
	publisher.Publish(&testEvent{data: "test"})

	if !strings.Contains(logBuffer.String(), "panicked") {
		t.Errorf("expected panic to be logged, got: %q", logBuffer.String())
	}
}

func TestMatchSignature(t *testing.T) {
	if !matchSignature(func(e *testEvent) {}, []any{&testEvent{}}) {
		t.Error("expected true")
	}
	if matchSignature(func(e *testEvent) {}, []any{&otherEvent{}}) {
		t.Error("expected false")
	}
	if matchSignature(func(e *testEvent) {}, []any{&testEvent{}, &testEvent{}}) {
		t.Error("expected false for arity mismatch")
	}
	if !matchSignature(func(e any) {}, []any{&testEvent{}}) {
		t.Error("expected true for interface param")
	}
}
