// Package transport provides the single-shot HTTP primitive the retry engine
// drives. Each call to Send performs exactly one network exchange and returns
// an Attempt handle that can be inspected while in flight and aborted.
//
// Classification
//   - Transport failures without an HTTP status: network error ("error").
//   - Settings.Timeout elapsed or net.Error timeout: timeout ("timeout").
//   - Cancellation of the context or Attempt.Abort: abort ("abort").
//   - Status outside 2xx and not 304: HTTP error ("error", status text).
//   - Body not decodable as the negotiated data type: parse error ("parsererror").
//
// Decoding
//   - Settings.DataType selects a decoder: json, xml, yaml or text.
//   - An empty DataType is guessed from the response Content-Type.
//   - 204, 304 and HEAD responses are not decoded.
//
// Propagation
//   - A request id header (X-Request-ID by default) is taken from the context
//     or generated, so every attempt of one logical request carries the same id.
//   - The global OpenTelemetry propagator injects traceparent/tracestate.
//
// Notes
//   - Request bodies are re-sent by rebuilding the http.Request on each attempt.
//   - Default headers and request interceptors are applied on every attempt.
package transport
