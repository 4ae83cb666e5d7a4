package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/retryajax/ajax"
	"github.com/gaborage/retryajax/config"
	"github.com/gaborage/retryajax/logger"
	"github.com/gaborage/retryajax/observability"
	"github.com/gaborage/retryajax/options"
	"github.com/gaborage/retryajax/transport"
)

// FetchOptions holds options for the fetch command
type FetchOptions struct {
	ConfigFile  string
	Method      string
	Body        string
	Headers     []string
	Tries       int
	Delay       time.Duration
	Timeout     time.Duration
	DataType    string
	Concurrency int
	FailFast    bool
}

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	opts := &FetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch one or more URLs with retries",
		Long: `Issues one logical request per URL. Network failures and timeouts are
retried up to --tries times with --delay between attempts; HTTP error statuses
and undecodable bodies are reported as they are.`,
		Example: `  # Retry a flaky endpoint up to 5 times, 200ms apart
  ajaxctl fetch --tries 5 --delay 200ms https://example.com/health

  # POST a JSON body using settings from a file
  ajaxctl fetch -c ajax.yaml -X POST -d '{"id":1}' -H 'Content-Type: application/json' https://example.com/items`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("tries") {
				opts.Tries = 0
			}
			if !flags.Changed("delay") {
				opts.Delay = -1
			}
			if !flags.Changed("timeout") {
				opts.Timeout = -1
			}
			return runFetch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&opts.Method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&opts.Body, "data", "d", "", "Request body")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "Request header as 'Name: value' (repeatable)")
	cmd.Flags().IntVar(&opts.Tries, "tries", 1, "Total attempts per URL (overrides config)")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 0, "Pause between attempts (overrides config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Per-attempt timeout (overrides config)")
	cmd.Flags().StringVar(&opts.DataType, "type", "", "Response decoding: json|xml|yaml|text")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "Maximum URLs in flight")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "Abort outstanding requests after the first failure")

	return cmd
}

// fetchResult is one line of fetch output
type fetchResult struct {
	URL        string
	Status     int
	TextStatus string
	Attempts   int
	Body       string
	Err        error
}

func runFetch(ctx context.Context, stdout, stderr io.Writer, opts *FetchOptions, urls []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.WithFile(opts.ConfigFile))
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return err
	}

	log := newLogger(&cfg.Log, stderr)

	provider, err := observability.NewProvider(&cfg.Observability, log)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := observability.Shutdown(provider, 0); err != nil {
			log.Warn().Err(err).Msg("Observability shutdown failed")
		}
	}()

	client := newClient(cfg, log, provider)

	// Requests are issued on gctx, so a fail-fast error aborts the rest.
	results := make([]fetchResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, url := range urls {
		g.Go(func() error {
			settings := options.Settings{
				URL:      url,
				Method:   opts.Method,
				Headers:  headers,
				Timeout:  cfg.HTTP.Timeout,
				DataType: cfg.HTTP.DataType,
			}
			if opts.Body != "" {
				settings.Body = []byte(opts.Body)
			}

			req, err := client.Ajax(gctx, settings)
			if err != nil {
				results[i] = fetchResult{URL: url, Err: err}
				return err
			}
			res, err := req.Wait(context.Background())
			results[i] = fetchResult{
				URL:        url,
				Status:     req.Status(),
				TextStatus: res.TextStatus,
				Attempts:   req.Attempts(),
				Body:       req.ResponseText(),
				Err:        err,
			}
			if err != nil && opts.FailFast {
				return fmt.Errorf("%s: %w", url, err)
			}
			return nil
		})
	}

	groupErr := g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		printResult(stdout, r)
	}

	if groupErr != nil {
		return groupErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(urls))
	}
	return nil
}

func applyOverrides(cfg *config.Config, opts *FetchOptions) error {
	if opts.Tries != 0 {
		cfg.Retry.Tries = opts.Tries
	}
	if opts.Delay >= 0 {
		cfg.Retry.Delay = opts.Delay
	}
	if opts.Timeout >= 0 {
		cfg.HTTP.Timeout = opts.Timeout
	}
	if opts.DataType != "" {
		cfg.HTTP.DataType = opts.DataType
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func newLogger(cfg *config.LogConfig, w io.Writer) logger.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return logger.NewWithWriter(cfg.Level, w, nil)
}

func newClient(cfg *config.Config, log logger.Logger, provider observability.Provider) *ajax.Client {
	tb := transport.NewBuilder(log).
		WithClientTimeout(cfg.HTTP.ClientTimeout).
		WithRequestIDHeader(cfg.HTTP.RequestIDHeader)
	for k, v := range cfg.HTTP.Headers {
		tb.WithDefaultHeader(k, v)
	}
	if cfg.HTTP.LogPayloads {
		tb.WithPayloadLogging(cfg.HTTP.MaxPayloadLogBytes)
	}
	if cfg.HTTP.Tracing {
		tb.WithTracing()
	}

	return ajax.NewBuilder(log).
		WithTransport(tb.Build()).
		WithDefaults(cfg.Retry.Policy()).
		WithTracerProvider(provider.TracerProvider()).
		Build()
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: value'", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func printResult(w io.Writer, r fetchResult) {
	if r.Err != nil {
		fmt.Fprintf(w, "%s\t%d\t%s\tattempts=%d\terror=%v\n", r.URL, r.Status, r.TextStatus, r.Attempts, r.Err)
		return
	}
	fmt.Fprintf(w, "%s\t%d\t%s\tattempts=%d\n", r.URL, r.Status, r.TextStatus, r.Attempts)
	if r.Body != "" {
		fmt.Fprintln(w, r.Body)
	}
}
