package analytics

import (
	"fmt"
	"time"
)

// InvalidEventError indicates malformed producer input, such as an empty
// event name. It never propagates past the write boundary.
type InvalidEventError struct {
	Name   string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event %q: %s", e.Name, e.Reason)
}

// RecordError is the soft failure returned by the write path. The caller's
// business operation continues regardless; the error exists for logging and
// metrics only.
type RecordError struct {
	EventName string
	Reason    string
	Err       error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record %q failed (%s): %v", e.EventName, e.Reason, e.Err)
	}
	return fmt.Sprintf("record %q failed (%s)", e.EventName, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// InvalidRangeError indicates user-correctable query parameters: a start
// after end, an unknown metric, or an unsupported granularity.
type InvalidRangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid query range: %s", e.Reason)
}

// QueryError indicates the store was unavailable or misbehaved during a
// read. Unlike write failures it is always surfaced, so dashboards can show
// a stale/error state instead of silently empty data.
type QueryError struct {
	Method string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("analytics query %s failed: %v", e.Method, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
