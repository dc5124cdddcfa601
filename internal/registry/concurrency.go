package registry

import "sync/atomic"

// BeginForward increments a worker's in-flight load and its lifetime
// request counter. It is the only place CurrentLoad and TotalRequests
// move upward, and is paired with EndForward on every exit path.
func BeginForward(w *Worker) {
	atomic.AddInt64(&w.CurrentLoad, 1)
	atomic.AddInt64(&w.TotalRequests, 1)
}

// EndForward decrements a worker's in-flight load. Call exactly once
// per BeginForward, via defer, so it runs on every exit path including
// panics.
func EndForward(w *Worker) {
	atomic.AddInt64(&w.CurrentLoad, -1)
}

// RecordFailure increments the worker's failure counters.
func RecordFailure(w *Worker) {
	atomic.AddInt64(&w.FailedRequests, 1)
}

// CurrentLoad reads the worker's in-flight request count.
func CurrentLoad(w *Worker) int64 {
	return atomic.LoadInt64(&w.CurrentLoad)
}

// ConsecFailures reads the worker's consecutive-failure count.
func ConsecFailures(w *Worker) int64 {
	return atomic.LoadInt64(&w.ConsecFailures)
}

// IncConsecFailures increments and returns the new consecutive-failure
// count.
func IncConsecFailures(w *Worker) int64 {
	return atomic.AddInt64(&w.ConsecFailures, 1)
}

// ResetConsecFailures zeroes the consecutive-failure count.
func ResetConsecFailures(w *Worker) {
	atomic.StoreInt64(&w.ConsecFailures, 0)
}
