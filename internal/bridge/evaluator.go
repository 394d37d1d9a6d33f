package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/metrics"
)

// Signal outcomes, used as metric labels.
const (
	OutcomeDispatched     = "dispatched"
	OutcomeRejectedToken  = "rejected_token"
	OutcomeRejectedPlugin = "rejected_plugin"
	OutcomeDenied         = "denied"
	OutcomeMalformed      = "malformed"
	OutcomeFailed         = "failed"
)

// Caller performs host API calls. *hostapi.Client implements it.
type Caller interface {
	Call(ctx context.Context, namespace, name string, args map[string]any) (json.RawMessage, error)
}

// Evaluator inspects the diagnostic lines of one script run and dispatches
// the callback signals addressed to it.
type Evaluator struct {
	ctx      context.Context
	session  *Session
	pluginID string
	host     Caller
	log      *log.Logger
	metrics  *metrics.Metrics
}

// NewEvaluator returns an evaluator for the script of pluginID.
func NewEvaluator(ctx context.Context, session *Session, pluginID string, host Caller, logger *log.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		ctx:      ctx,
		session:  session,
		pluginID: pluginID,
		host:     host,
		log:      logger,
		metrics:  m,
	}
}

// Line handles one diagnostic line and reports whether it should be shown.
// Every line with a signal header is consumed, whatever its outcome.
func (e *Evaluator) Line(line string) bool {
	sig, err := ParseSignal(line)
	if errors.Is(err, ErrNotSignal) {
		return true
	}

	outcome := e.evaluate(sig, err)
	e.metrics.Signals.WithLabelValues(outcome).Inc()
	return false
}

func (e *Evaluator) evaluate(sig Signal, parseErr error) string {
	// Checked on every signal so output captured before a rotation is inert.
	if !e.session.Validate(sig.Token) {
		e.log.Warn("signal with invalid token dropped", "plugin", e.pluginID)
		return OutcomeRejectedToken
	}
	if sig.PluginID != e.pluginID {
		e.log.Warn("signal for another plugin dropped", "plugin", e.pluginID, "target", sig.PluginID)
		return OutcomeRejectedPlugin
	}
	if parseErr != nil {
		e.log.Warn("malformed signal", "plugin", e.pluginID, "err", parseErr)
		return OutcomeMalformed
	}

	m, err := hostapi.Lookup(sig.Namespace, sig.Method)
	if err != nil {
		e.log.Error("signal for unknown method", "plugin", e.pluginID, "method", sig.Key())
		return OutcomeFailed
	}
	if m.Returns {
		e.log.Warn("signal for value-returning method denied", "plugin", e.pluginID, "method", m.Key())
		return OutcomeDenied
	}
	if e.host == nil {
		e.log.Error("no host to dispatch signal", "method", m.Key())
		return OutcomeFailed
	}

	if _, err := e.host.Call(e.ctx, sig.Namespace, sig.Method, sig.Args); err != nil {
		e.log.Error("signal dispatch failed", "plugin", e.pluginID, "method", m.Key(), "err", err)
		return OutcomeFailed
	}
	e.log.Debug("signal dispatched", "plugin", e.pluginID, "method", m.Key())
	return OutcomeDispatched
}
