package metrics

import (
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	obserrors "github.com/target/session-bridge/internal/observability/errors"
	"github.com/target/session-bridge/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// SessionMetric captures one session-bridge operation for metric emission.
type SessionMetric struct {
	Operation domainauth.Operation
	Err       error
	// HasSession is only meaningful for OpCheck.
	HasSession bool
}

// EmitSessionOperation emits the session.<operation> counter.
func EmitSessionOperation(sink statsd.Sink, in SessionMetric) {
	if sink == nil || in.Operation == "" {
		return
	}

	tags := map[string]string{"result": ResultSuccess}
	if in.Err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	if in.Operation == domainauth.OpCheck && in.Err == nil {
		tags["has_session"] = boolTag(in.HasSession)
	}

	sink.Count("session."+string(in.Operation), 1, tags)
}

// EmitMintDuration records how long the identity provider took to mint a credential.
func EmitMintDuration(sink statsd.Sink, d time.Duration, err error) {
	if sink == nil || d <= 0 {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sink.Timing("session.mint.duration", d, map[string]string{"result": result})
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
