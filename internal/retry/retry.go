package retry

// OnError is invoked once for every failed attempt that will be retried.
// attempt is zero-based; retries is the configured maximum retry count,
// so attempt ranges over 0..retries-1.
type OnError func(err error, attempt int, retries int)

// Do runs op, retrying on failure up to retries additional times
// (retries+1 attempts total). There is no delay between attempts:
// the failures this wrapper exists for are transient network/RPC
// hiccups, not rate limits.
//
// The final failure is returned, not retried, and does not invoke
// onError. Do itself performs no logging; onError is the only place
// attempt-scoped notification happens.
func Do[T any](op func() (T, error), retries int, onError OnError) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if attempt >= retries {
			return zero, err
		}
		if onError != nil {
			onError(err, attempt, retries)
		}
	}
}
