package metrics

import (
	"time"

	obserrors "github.com/target/session-bridge/internal/observability/errors"
	"github.com/target/session-bridge/internal/observability/statsd"
)

// AuditReapMetric describes one audit retention pass.
type AuditReapMetric struct {
	Deleted int64
	Elapsed time.Duration
	Err     error
}

// EmitAuditReap emits audit.reaper.deleted and audit.reaper.duration.
func EmitAuditReap(sink statsd.Sink, in AuditReapMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if in.Err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("audit.reaper.deleted", in.Deleted, tags)
	if in.Elapsed > 0 {
		sink.Timing("audit.reaper.duration", in.Elapsed, tags)
	}
}
