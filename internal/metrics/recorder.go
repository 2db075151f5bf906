// Package metrics provides a lightweight fluent recorder for run metrics:
// agent latency, call and retry counts, per-run totals. Each Recorder
// accumulates dimensions and values for one operation and flushes them as a
// single structured log event, so metrics stay greppable without a metrics
// backend and stdout stays free for the JSON run summary.
package metrics

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Units attached to metric values.
const (
	UnitMilliseconds = "ms"
	UnitCount        = "count"
	UnitNone         = ""
)

type value struct {
	val  float64
	unit string
}

// Recorder accumulates dimensions and metric values for a single flush.
// Not safe for concurrent use; create one per operation.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	values     map[string]value
}

// New creates a Recorder for the given namespace (e.g. "scanbatch").
func New(namespace string) *Recorder {
	return &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		values:     make(map[string]value),
	}
}

// Dimension adds a string attribute to the flushed event.
func (r *Recorder) Dimension(key, val string) *Recorder {
	r.dimensions[key] = val
	return r
}

// Metric records a named value with a unit.
func (r *Recorder) Metric(name string, val float64, unit string) *Recorder {
	r.values[name] = value{val: val, unit: unit}
	return r
}

// Count is a convenience for recording a count metric of 1.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Flush emits the accumulated metrics as one DEBUG log event. A Recorder
// with no metrics flushes nothing. Recorders are single-use.
func (r *Recorder) Flush() {
	if len(r.values) == 0 {
		return
	}

	dims := zerolog.Dict()
	for k, v := range r.dimensions {
		dims = dims.Str(k, v)
	}
	vals := zerolog.Dict()
	for k, v := range r.values {
		if v.unit == UnitNone {
			vals = vals.Float64(k, v.val)
		} else {
			vals = vals.Float64(k+"_"+v.unit, v.val)
		}
	}

	log.Debug().
		Str("namespace", r.namespace).
		Dict("dimensions", dims).
		Dict("metrics", vals).
		Msg("metrics")
}
