package transport

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gaborage/retryajax/logger"
	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/retry"
)

// Test constants to avoid string duplication
const (
	testContentTypeHdr = "Content-Type"
	testJSONType       = "application/json"
	testAPIKey         = "X-API-Key"
	testAPIValue       = "test-key"
	testRequestID      = "req-123"
)

func createTestLogger() logger.Logger {
	return logger.Nop()
}

func newIPv4TestServer(t *testing.T, handler nethttp.Handler) *httptest.Server {
	t.Helper()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: unable to bind IPv4 listener: %v", err)
		return &httptest.Server{}
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &nethttp.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}

func respond(status int, contentType, body string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if contentType != "" {
			w.Header().Set(testContentTypeHdr, contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// blockUntilClientGone holds the request open until the client disconnects
func blockUntilClientGone(w nethttp.ResponseWriter, r *nethttp.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
		w.WriteHeader(nethttp.StatusOK)
	}
}

func wait(t *testing.T, a Attempt) retry.Outcome {
	t.Helper()
	select {
	case <-a.Done():
		return a.Outcome()
	case <-time.After(5 * time.Second):
		t.Fatal("attempt did not settle")
		return retry.Outcome{}
	}
}

func TestSendSuccess(t *testing.T) {
	server := newIPv4TestServer(t, respond(nethttp.StatusOK, testJSONType, `{"name":"bob","n":2}`))
	tr := NewHTTP(createTestLogger())

	a := tr.Send(context.Background(), &options.Settings{URL: server.URL, Context: "ctx-value"})
	o := wait(t, a)

	require.Equal(t, retry.KindSuccess, o.Kind)
	assert.Equal(t, retry.TextSuccess, o.TextStatus)
	assert.NoError(t, o.Err)
	assert.Equal(t, map[string]any{"name": "bob", "n": float64(2)}, o.Data)
	assert.Equal(t, nethttp.StatusOK, o.Status)
	assert.Equal(t, "OK", o.StatusText)

	assert.Equal(t, StateDone, a.ReadyState())
	assert.Equal(t, nethttp.StatusOK, a.Status())
	assert.Equal(t, "OK", a.StatusText())
	assert.Equal(t, `{"name":"bob","n":2}`, a.ResponseText())
	assert.Equal(t, testJSONType, a.GetResponseHeader(testContentTypeHdr))
	assert.Equal(t, testJSONType, a.GetResponseHeader("content-type"))
	assert.Contains(t, a.GetAllResponseHeaders(), "Content-Type: application/json\r\n")
	assert.Equal(t, "ctx-value", a.Context())
}

func TestSendHTTPError(t *testing.T) {
	server := newIPv4TestServer(t, respond(nethttp.StatusInternalServerError, "text/plain", "error"))
	tr := NewHTTP(createTestLogger())

	o := wait(t, tr.Send(context.Background(), &options.Settings{URL: server.URL}))

	assert.Equal(t, retry.KindHTTPError, o.Kind)
	assert.Equal(t, retry.TextError, o.TextStatus)
	assert.EqualError(t, o.Err, "Internal Server Error")
	assert.True(t, retry.IsHTTPStatusError(o.Err, 500))
	assert.Equal(t, 500, o.Status)
}

func TestSendParseError(t *testing.T) {
	tests := []struct {
		name        string
		dataType    string
		contentType string
		body        string
	}{
		{"explicit json", DataTypeJSON, "text/json", "</q>"},
		{"guessed json", "", testJSONType, "{broken"},
		{"explicit xml", DataTypeXML, "text/plain", "</q>"},
		{"explicit yaml", DataTypeYAML, "text/plain", "a: [unclosed"},
		{"unknown data type", "csv", "text/plain", "a,b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newIPv4TestServer(t, respond(nethttp.StatusOK, tt.contentType, tt.body))
			tr := NewHTTP(createTestLogger())

			a := tr.Send(context.Background(), &options.Settings{URL: server.URL, DataType: tt.dataType})
			o := wait(t, a)

			assert.Equal(t, retry.KindParseError, o.Kind)
			assert.Equal(t, retry.TextParseError, o.TextStatus)
			assert.True(t, retry.IsErrorType(o.Err, retry.ParseError))
			assert.Equal(t, 200, a.Status())
			assert.Equal(t, tt.body, a.ResponseText())
		})
	}
}

func TestSendDecoding(t *testing.T) {
	t.Run("xml guessed", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(200, "application/xml; charset=utf-8",
			`<root id="1"><item>a</item><item>b</item></root>`))
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: server.URL}))

		require.Equal(t, retry.KindSuccess, o.Kind)
		root, ok := o.Data.(*XMLNode)
		require.True(t, ok)
		assert.Equal(t, "root", root.Name.Local)
		require.Len(t, root.Children, 2)
		assert.Equal(t, "a", root.Find("item").Text)
		assert.Nil(t, root.Find("missing"))
		require.Len(t, root.Attrs, 1)
		assert.Equal(t, "1", root.Attrs[0].Value)
	})

	t.Run("yaml guessed", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(200, "application/yaml", "tries: 3\nname: x\n"))
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: server.URL}))

		require.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, map[string]any{"tries": 3, "name": "x"}, o.Data)
	})

	t.Run("text fallback", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(200, "application/html", "something"))
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: server.URL}))

		require.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, "something", o.Data)
	})

	t.Run("custom decoder", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(200, "text/csv", "a,b"))
		tr := NewBuilder(createTestLogger()).
			WithDecoder("csv", func(body []byte) (any, error) {
				return strings.Split(string(body), ","), nil
			}).
			Build()
		o := wait(t, tr.Send(context.Background(), &options.Settings{URL: server.URL, DataType: "csv"}))

		require.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, []string{"a", "b"}, o.Data)
	})
}

func TestSendNoContent(t *testing.T) {
	t.Run("204", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(nethttp.StatusNoContent, testJSONType, ""))
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(),
			&options.Settings{URL: server.URL, DataType: DataTypeJSON}))

		assert.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, retry.TextNoContent, o.TextStatus)
		assert.Nil(t, o.Data)
	})

	t.Run("HEAD", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(nethttp.StatusOK, testJSONType, ""))
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(),
			&options.Settings{URL: server.URL, Method: nethttp.MethodHead}))

		assert.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, retry.TextNoContent, o.TextStatus)
	})

	t.Run("304", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(nethttp.StatusNotModified, "", ""))
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: server.URL}))

		assert.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, retry.TextNotModified, o.TextStatus)
	})
}

func TestSendTimeout(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(blockUntilClientGone))
	tr := NewHTTP(createTestLogger())

	a := tr.Send(context.Background(), &options.Settings{URL: server.URL, Timeout: 20 * time.Millisecond})
	o := wait(t, a)

	assert.Equal(t, retry.KindTimeout, o.Kind)
	assert.Equal(t, retry.TextTimeout, o.TextStatus)
	assert.EqualError(t, o.Err, "timeout")
	assert.Equal(t, StateUnsent, a.ReadyState())
	assert.Equal(t, 0, a.Status())
	assert.Equal(t, retry.TextTimeout, a.StatusText())
}

func TestSendClientTimeout(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(blockUntilClientGone))
	tr := NewBuilder(createTestLogger()).WithClientTimeout(20 * time.Millisecond).Build()

	o := wait(t, tr.Send(context.Background(), &options.Settings{URL: server.URL}))
	assert.Equal(t, retry.KindTimeout, o.Kind)
}

func TestSendAbort(t *testing.T) {
	t.Run("abort handle", func(t *testing.T) {
		server := newIPv4TestServer(t, nethttp.HandlerFunc(blockUntilClientGone))
		a := NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: server.URL, Timeout: time.Minute})

		time.Sleep(10 * time.Millisecond)
		a.Abort()
		o := wait(t, a)

		assert.Equal(t, retry.KindAbort, o.Kind)
		assert.Equal(t, retry.TextAbort, o.TextStatus)
		assert.EqualError(t, o.Err, "abort")
		assert.Equal(t, StateUnsent, a.ReadyState())
		assert.Equal(t, retry.TextAbort, a.StatusText())
	})

	t.Run("cancel parent context", func(t *testing.T) {
		server := newIPv4TestServer(t, nethttp.HandlerFunc(blockUntilClientGone))
		ctx, cancel := context.WithCancel(context.Background())
		a := NewHTTP(createTestLogger()).Send(ctx, &options.Settings{URL: server.URL})

		cancel()
		assert.Equal(t, retry.KindAbort, wait(t, a).Kind)
	})

	t.Run("abort after settle is a no-op", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(200, "text/plain", "ok"))
		a := NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: server.URL})
		o := wait(t, a)
		a.Abort()

		assert.Equal(t, retry.KindSuccess, o.Kind)
		assert.Equal(t, retry.KindSuccess, a.Outcome().Kind)
		assert.Equal(t, 200, a.Status())
	})
}

func TestSendNetworkError(t *testing.T) {
	server := newIPv4TestServer(t, respond(200, "", ""))
	url := server.URL
	server.Close()

	a := NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: url})
	o := wait(t, a)

	assert.Equal(t, retry.KindNetworkError, o.Kind)
	assert.Equal(t, retry.TextError, o.TextStatus)
	assert.True(t, retry.IsErrorType(o.Err, retry.NetworkError))
	assert.False(t, o.Permanent)
	assert.Equal(t, 0, a.Status())
	assert.Equal(t, StateUnsent, a.ReadyState())
	assert.Equal(t, "", a.GetResponseHeader(testContentTypeHdr))
	assert.Equal(t, "", a.GetAllResponseHeaders())
}

func TestSendEmptyURL(t *testing.T) {
	o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{}))
	assert.Equal(t, retry.KindNetworkError, o.Kind)
	assert.Contains(t, o.Err.Error(), "URL cannot be empty")
}

func TestRequestDecoration(t *testing.T) {
	var captured atomic.Pointer[nethttp.Request]
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		captured.Store(r.Clone(context.Background()))
		w.WriteHeader(nethttp.StatusNoContent)
	}))

	t.Run("headers auth and request id", func(t *testing.T) {
		tr := NewBuilder(createTestLogger()).
			WithDefaultHeader(testAPIKey, testAPIValue).
			WithDefaultHeader("Accept", "text/plain").
			WithBasicAuth("svc", "secret").
			Build()

		ctx := WithRequestID(context.Background(), testRequestID)
		o := wait(t, tr.Send(ctx, &options.Settings{
			URL:     server.URL,
			Method:  nethttp.MethodPost,
			Headers: map[string]string{"Accept": testJSONType},
			Body:    []byte(`{}`),
		}))
		require.Equal(t, retry.KindSuccess, o.Kind)

		req := captured.Load()
		require.NotNil(t, req)
		assert.Equal(t, nethttp.MethodPost, req.Method)
		assert.Equal(t, testAPIValue, req.Header.Get(testAPIKey))
		assert.Equal(t, testJSONType, req.Header.Get("Accept"))
		assert.Equal(t, testJSONType, req.Header.Get(testContentTypeHdr))
		assert.Equal(t, testRequestID, req.Header.Get(HeaderXRequestID))
		user, pass, ok := req.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)
	})

	t.Run("settings credentials win", func(t *testing.T) {
		tr := NewBuilder(createTestLogger()).WithBasicAuth("svc", "secret").Build()
		wait(t, tr.Send(context.Background(), &options.Settings{URL: server.URL, Username: "me", Password: "pw"}))

		user, _, ok := captured.Load().BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "me", user)
	})

	t.Run("generated request id with custom header", func(t *testing.T) {
		tr := NewBuilder(createTestLogger()).
			WithRequestIDHeader("X-Correlation-ID").
			WithRequestIDGenerator(func() string { return "generated" }).
			Build()
		wait(t, tr.Send(context.Background(), &options.Settings{URL: server.URL}))

		assert.Equal(t, "generated", captured.Load().Header.Get("X-Correlation-ID"))
		assert.Empty(t, captured.Load().Header.Get(HeaderXRequestID))
	})

	t.Run("interceptor and beforeSend run", func(t *testing.T) {
		tr := NewBuilder(createTestLogger()).
			WithRequestInterceptor(func(_ context.Context, req *nethttp.Request) error {
				req.Header.Set("X-Intercepted", "true")
				return nil
			}).
			Build()
		wait(t, tr.Send(context.Background(), &options.Settings{
			URL: server.URL,
			BeforeSend: func(req *nethttp.Request) error {
				req.Header.Set("X-Before-Send", req.Header.Get("X-Intercepted"))
				return nil
			},
		}))

		assert.Equal(t, "true", captured.Load().Header.Get("X-Before-Send"))
	})
}

func TestBeforeSendErrorIsNetworkError(t *testing.T) {
	var hits atomic.Int32
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		hits.Add(1)
		w.WriteHeader(200)
	}))

	rejected := errors.New("rejected")
	o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{
		URL:        server.URL,
		BeforeSend: func(*nethttp.Request) error { return rejected },
	}))

	assert.Equal(t, retry.KindNetworkError, o.Kind)
	assert.True(t, o.Permanent)
	assert.ErrorIs(t, o.Err, rejected)
	assert.Zero(t, hits.Load())
}

func TestBuildFailuresArePermanent(t *testing.T) {
	t.Run("malformed url", func(t *testing.T) {
		o := wait(t, NewHTTP(createTestLogger()).Send(context.Background(), &options.Settings{URL: "http://[::1"}))
		assert.Equal(t, retry.KindNetworkError, o.Kind)
		assert.True(t, o.Permanent)
	})

	t.Run("interceptor error", func(t *testing.T) {
		tr := NewBuilder(createTestLogger()).
			WithRequestInterceptor(func(context.Context, *nethttp.Request) error { return errors.New("no token") }).
			Build()
		o := wait(t, tr.Send(context.Background(), &options.Settings{URL: "http://127.0.0.1:1"}))
		assert.Equal(t, retry.KindNetworkError, o.Kind)
		assert.True(t, o.Permanent)
	})
}

func TestBuilderOptions(t *testing.T) {
	log := createTestLogger()

	t.Run("defaults", func(t *testing.T) {
		tr := NewBuilder(log).Build()
		assert.Equal(t, HeaderXRequestID, tr.config.RequestIDHeader)
		assert.Equal(t, DefaultMaxPayloadLogBytes, tr.config.MaxPayloadLogBytes)
		assert.False(t, tr.config.LogPayloads)
		assert.NotEmpty(t, tr.config.NewRequestID())
		assert.Len(t, tr.decoders, 4)
	})

	t.Run("custom http client and transport", func(t *testing.T) {
		custom := &nethttp.Client{Timeout: 123 * time.Millisecond}
		rt := nethttp.DefaultTransport
		tr := NewBuilder(log).WithHTTPClient(custom).WithTransport(rt).Build()
		assert.NotSame(t, custom, tr.httpClient)
		assert.Equal(t, rt, tr.httpClient.Transport)
		assert.Equal(t, 123*time.Millisecond, tr.httpClient.Timeout)
	})

	t.Run("caller client is not modified", func(t *testing.T) {
		custom := &nethttp.Client{Timeout: time.Second}
		tr := NewBuilder(log).
			WithHTTPClient(custom).
			WithTransport(nethttp.DefaultTransport).
			WithClientTimeout(5 * time.Second).
			WithTracing().
			Build()

		assert.Nil(t, custom.Transport)
		assert.Equal(t, time.Second, custom.Timeout)
		assert.IsType(t, &otelhttp.Transport{}, tr.httpClient.Transport)
		assert.Equal(t, 5*time.Second, tr.httpClient.Timeout)
	})

	t.Run("empty values keep defaults", func(t *testing.T) {
		tr := NewBuilder(log).WithRequestIDHeader("").WithRequestIDGenerator(nil).WithDecoder("", nil).Build()
		assert.Equal(t, HeaderXRequestID, tr.config.RequestIDHeader)
		assert.NotNil(t, tr.config.NewRequestID)
	})

	t.Run("payload logging", func(t *testing.T) {
		tr := NewBuilder(log).WithPayloadLogging(4).Build()
		assert.True(t, tr.config.LogPayloads)
		assert.Equal(t, []byte("abcd"), tr.truncate([]byte("abcdef")))
		assert.Equal(t, []byte("ab"), tr.truncate([]byte("ab")))
	})

	t.Run("tracing wraps the round tripper", func(t *testing.T) {
		server := newIPv4TestServer(t, respond(nethttp.StatusOK, "text/plain", "traced"))
		tr := NewBuilder(log).WithTracing().Build()
		assert.IsType(t, &otelhttp.Transport{}, tr.httpClient.Transport)

		o := wait(t, tr.Send(context.Background(), &options.Settings{URL: server.URL}))
		assert.Equal(t, "traced", o.Data)
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.NotNil(t, NewBuilder(nil).Build().logger)
	})
}

func TestFormatHeaders(t *testing.T) {
	assert.Equal(t, "", FormatHeaders(nil))
	h := nethttp.Header{}
	h.Set("Content-Type", "application/html")
	h.Add("X-Multi", "a")
	h.Add("X-Multi", "b")
	assert.Equal(t, "Content-Type: application/html\r\nX-Multi: a, b\r\n", FormatHeaders(h))
}

func TestGuessDataType(t *testing.T) {
	tests := map[string]string{
		"application/json":         DataTypeJSON,
		"application/problem+json": DataTypeJSON,
		"text/json; charset=utf-8": DataTypeJSON,
		"application/xml":          DataTypeXML,
		"text/xml":                 DataTypeXML,
		"application/yaml":         DataTypeYAML,
		"text/html":                DataTypeText,
		"":                         DataTypeText,
		"not a media type;;":       DataTypeText,
	}
	for contentType, expected := range tests {
		t.Run(contentType, func(t *testing.T) {
			assert.Equal(t, expected, guessDataType(contentType))
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	_, ok := RequestIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithRequestID(context.Background(), testRequestID)
	id, ok := RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, testRequestID, id)
	assert.Equal(t, testRequestID, EnsureRequestID(ctx))

	generated := EnsureRequestID(context.Background())
	assert.Len(t, generated, 36)
}
