package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
)

// Send starts one physical attempt and returns immediately. The attempt is
// cancelled when ctx is done or Abort is called, and times out after
// s.Timeout when positive.
func (t *HTTP) Send(ctx context.Context, s *options.Settings) Attempt {
	attemptCtx, cancelCause := context.WithCancelCause(ctx)
	runCtx := attemptCtx
	stopTimeout := context.CancelFunc(func() {})
	if s.Timeout > 0 {
		runCtx, stopTimeout = context.WithTimeoutCause(attemptCtx, s.Timeout, errAttemptTimeout)
	}
	cancel := func(cause error) {
		cancelCause(cause)
		stopTimeout()
	}

	a := newAttempt(s.Context, cancel)
	go t.run(runCtx, a, s)
	return a
}

func (t *HTTP) run(ctx context.Context, a *attempt, s *options.Settings) {
	start := time.Now()
	callCount := atomic.AddInt64(&t.callCount, 1)
	method := s.EffectiveMethod()

	t.logRequest(method, s, callCount)

	httpReq, err := t.buildRequest(ctx, method, s)
	if err != nil {
		o := t.classifyFailure(ctx, s, err, "failed to create HTTP request")
		// nothing was sent; the same settings fail the same way next time
		o.Permanent = o.Kind == retry.KindNetworkError
		a.finish(o)
		return
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		a.finish(t.classifyFailure(ctx, s, err, "request execution failed"))
		return
	}
	defer httpResp.Body.Close()

	a.headersReceived(httpResp)
	a.loading()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		a.finish(t.classifyFailure(ctx, s, err, "failed to read response body"))
		return
	}
	a.bodyReceived(body)

	o := t.classifyResponse(method, s, httpResp, body)
	t.logResponse(o, body, time.Since(start), callCount)
	a.finish(o)
}

// buildRequest constructs an *http.Request, applies headers/auth/propagation,
// and runs the interceptors and the caller's BeforeSend hook.
func (t *HTTP) buildRequest(ctx context.Context, method string, s *options.Settings) (*nethttp.Request, error) {
	if s.URL == "" {
		return nil, errors.New("URL cannot be empty")
	}

	var body io.Reader
	if s.Body != nil {
		body = bytes.NewReader(s.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, s.URL, body)
	if err != nil {
		return nil, err
	}

	t.applyHeaders(httpReq, s)
	t.applyAuth(httpReq, s)

	if httpReq.Header.Get(t.config.RequestIDHeader) == "" {
		id, ok := RequestIDFromContext(ctx)
		if !ok {
			id = t.config.NewRequestID()
		}
		httpReq.Header.Set(t.config.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	for _, interceptor := range t.config.RequestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("request interceptor failed: %w", err)
		}
	}
	if s.BeforeSend != nil {
		if err := s.BeforeSend(httpReq); err != nil {
			return nil, fmt.Errorf("beforeSend rejected request: %w", err)
		}
	}
	return httpReq, nil
}

// applyHeaders applies default headers first, then per-request headers
func (t *HTTP) applyHeaders(httpReq *nethttp.Request, s *options.Settings) {
	for key, value := range t.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range s.Headers {
		httpReq.Header.Set(key, value)
	}
	if httpReq.Header.Get("Content-Type") == "" && s.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
}

// applyAuth applies request credentials, falling back to the transport's
func (t *HTTP) applyAuth(httpReq *nethttp.Request, s *options.Settings) {
	if s.Username != "" || s.Password != "" {
		httpReq.SetBasicAuth(s.Username, s.Password)
		return
	}
	if auth := t.config.BasicAuth; auth != nil {
		httpReq.SetBasicAuth(auth.Username, auth.Password)
	}
}

// classifyFailure maps an error raised before a full response was read.
// Any cancellation of the attempt context other than its own deadline is an abort.
func (t *HTTP) classifyFailure(ctx context.Context, s *options.Settings, err error, message string) retry.Outcome {
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), errAttemptTimeout) {
			return timeoutOutcome(s.Timeout)
		}
		return retry.Aborted(0)
	}
	if isTimeout(err) {
		return timeoutOutcome(t.httpClient.Timeout)
	}
	t.logger.Debug().
		Str("url", s.URL).
		Err(err).
		Msg("HTTP attempt failed")
	return retry.Outcome{
		Kind:       retry.KindNetworkError,
		TextStatus: retry.TextError,
		StatusText: retry.TextError,
		Err:        retry.NewNetworkError(message, err),
	}
}

func timeoutOutcome(timeout time.Duration) retry.Outcome {
	return retry.Outcome{
		Kind:       retry.KindTimeout,
		TextStatus: retry.TextTimeout,
		StatusText: retry.TextTimeout,
		Err:        retry.NewTimeoutError(timeout),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyResponse turns a fully read response into an outcome
func (t *HTTP) classifyResponse(method string, s *options.Settings, resp *nethttp.Response, body []byte) retry.Outcome {
	o := retry.Outcome{
		Status:     resp.StatusCode,
		StatusText: retry.StatusTextOf(resp.Status, resp.StatusCode),
	}

	if !retry.IsSuccessStatus(resp.StatusCode) {
		o.Kind = retry.KindHTTPError
		o.TextStatus = retry.TextError
		o.Err = retry.NewHTTPError(o.StatusText, resp.StatusCode, body)
		return o
	}

	switch {
	case resp.StatusCode == nethttp.StatusNoContent || method == nethttp.MethodHead:
		o.Kind = retry.KindSuccess
		o.TextStatus = retry.TextNoContent
		return o
	case resp.StatusCode == nethttp.StatusNotModified:
		o.Kind = retry.KindSuccess
		o.TextStatus = retry.TextNotModified
		return o
	}

	dataType := s.DataType
	if dataType == "" {
		dataType = guessDataType(resp.Header.Get("Content-Type"))
	}
	decode, ok := t.decoders[dataType]
	if !ok {
		o.Kind = retry.KindParseError
		o.TextStatus = retry.TextParseError
		o.Err = retry.NewParseError(dataType, fmt.Errorf("no decoder registered for %q", dataType))
		return o
	}
	data, err := decode(body)
	if err != nil {
		o.Kind = retry.KindParseError
		o.TextStatus = retry.TextParseError
		o.Err = retry.NewParseError(dataType, err)
		return o
	}

	o.Kind = retry.KindSuccess
	o.TextStatus = retry.TextSuccess
	o.Data = data
	return o
}

// logRequest logs the outgoing attempt
func (t *HTTP) logRequest(method string, s *options.Settings, callCount int64) {
	logEvent := t.logger.Debug().
		Str("direction", "outbound").
		Str("method", method).
		Str("url", s.URL).
		Int64("call_count", callCount)

	if t.config.LogPayloads {
		if len(s.Headers) > 0 {
			logEvent = logEvent.Interface("headers", s.Headers)
		}
		if len(s.Body) > 0 {
			logEvent = logEvent.Bytes("body", t.truncate(s.Body))
		}
	}

	logEvent.Msg("HTTP attempt request")
}

// logResponse logs the incoming response of an attempt
func (t *HTTP) logResponse(o retry.Outcome, body []byte, elapsed time.Duration, callCount int64) {
	logEvent := t.logger.Debug().
		Str("direction", "inbound").
		Int("status", o.Status).
		Str("kind", o.Kind.String()).
		Dur("elapsed", elapsed).
		Int64("call_count", callCount)

	if t.config.LogPayloads && len(body) > 0 {
		logEvent = logEvent.Bytes("body", t.truncate(body))
	}

	logEvent.Msg("HTTP attempt response")
}

func (t *HTTP) truncate(b []byte) []byte {
	if limit := t.config.MaxPayloadLogBytes; limit > 0 && len(b) > limit {
		return b[:limit]
	}
	return b
}
