package interfaces

import "time"

// MetricsSink receives fire-and-forget measurements from the engine, pool,
// and scheduler. Implementations must never block or fail in a way that
// affects caller correctness.
type MetricsSink interface {
	// RecordWorkflow reports one finished workflow execution
	RecordWorkflow(success bool, stepCount int, duration time.Duration)

	// RecordAcquire reports a successful browser lease
	RecordAcquire()

	// RecordRelease reports a lease returned after the given usage time
	RecordRelease(usage time.Duration)

	// RecordResourceError reports a failed browser instance creation
	RecordResourceError()
}
