// Package ajax wraps a request primitive with transparent retries.
//
// A call to Client.Ajax returns a *Request that behaves like a single
// request: hooks and subscribers fire once, bound to the final physical
// attempt, and accessors read through to whichever attempt is current.
// Between attempts the policy in retry.Config decides whether the failure
// is eligible for another try and how long to wait first.
//
//	client := ajax.NewBuilder(log).
//		WithDefaults(retry.Config{Tries: 3, Delay: 100 * time.Millisecond}).
//		Build()
//
//	req, err := client.Ajax(ctx, "https://api.example.com/items", options.Settings{
//		DataType: "json",
//		Success: func(data any, textStatus string, xhr options.XHR) {
//			// ...
//		},
//	})
//	if err != nil {
//		return err // malformed call, never retried
//	}
//	res, err := req.Wait(ctx)
//
// Abort, or cancellation of the context passed to Ajax, settles the request
// as "abort" at once and stops any pending retry.
package ajax
