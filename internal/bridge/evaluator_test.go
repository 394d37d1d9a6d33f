package bridge

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/hostapi/hostapitest"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
)

func newEvaluator(t *testing.T, session *Session, pluginID string) (*Evaluator, *hostapitest.Host, *metrics.Metrics) {
	t.Helper()
	host := hostapitest.New("HOST")
	t.Cleanup(host.Close)
	m := metrics.New(nil)
	e := NewEvaluator(context.Background(), session, pluginID, hostapi.New(host.URL), logging.Discard(), m)
	return e, host, m
}

func TestEvaluatorOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		line       string
		keep       bool
		outcome    string
		dispatched int
	}{
		{"plain text", "Traceback (most recent call last):", true, "", 0},
		{"dispatched", "$$$T1$$$plugin42$$$folder.create(name=Test)", false, OutcomeDispatched, 1},
		{"other plugin", "$$$T1$$$plugin7$$$folder.create(name=Test)", false, OutcomeRejectedPlugin, 0},
		{"wrong token", "$$$T9$$$plugin42$$$folder.create(name=Test)", false, OutcomeRejectedToken, 0},
		{"value returning", "$$$T1$$$plugin42$$$item.getSelected()", false, OutcomeDenied, 0},
		{"unknown method", "$$$T1$$$plugin42$$$folder.explode()", false, OutcomeFailed, 0},
		{"malformed call", "$$$T1$$$plugin42$$$folder.create(name=", false, OutcomeMalformed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, host, m := newEvaluator(t, NewSessionWithToken("T1"), "plugin42")

			if got := e.Line(tt.line); got != tt.keep {
				t.Errorf("Line() = %v, want %v", got, tt.keep)
			}
			if n := len(host.CallsTo("folder.create")); n != tt.dispatched {
				t.Errorf("folder.create calls = %d, want %d", n, tt.dispatched)
			}
			if tt.outcome != "" {
				if got := testutil.ToFloat64(m.Signals.WithLabelValues(tt.outcome)); got != 1 {
					t.Errorf("signals{%s} = %v, want 1", tt.outcome, got)
				}
			}
		})
	}
}

func TestEvaluatorRejectsStaleToken(t *testing.T) {
	t.Parallel()

	session := NewSessionWithToken("T1")
	e, host, m := newEvaluator(t, session, "plugin42")
	captured := "$$$T1$$$plugin42$$$folder.create(name=Test)"

	if e.Line(captured) {
		t.Fatal("signal shown")
	}
	session.Rotate()
	if e.Line(captured) {
		t.Fatal("replayed signal shown")
	}

	if n := len(host.CallsTo("folder.create")); n != 1 {
		t.Errorf("folder.create calls = %d, want 1", n)
	}
	if got := testutil.ToFloat64(m.Signals.WithLabelValues(OutcomeRejectedToken)); got != 1 {
		t.Errorf("rejected_token = %v, want 1", got)
	}
}

func TestEvaluatorHostFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	e, host, m := newEvaluator(t, NewSessionWithToken("T1"), "p")
	host.Fail("folder.create")

	if e.Line("$$$T1$$$p$$$folder.create(name=x)") {
		t.Error("failed signal shown")
	}
	if got := testutil.ToFloat64(m.Signals.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}
