package engine

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Defaults for the retry engine and the async-job protocol.
const (
	// DefaultTimeout bounds one logical call end to end, including
	// retries and the single refresh-and-replay pass.
	DefaultTimeout = 4 * time.Minute

	// DefaultAttemptTimeout bounds a single HTTP attempt within a
	// logical call. Streaming calls are exempt.
	DefaultAttemptTimeout = 15 * time.Second

	// DefaultRetryCount is the maximum number of attempts per send.
	DefaultRetryCount = 20

	// DefaultBackoffCap limits the exponential sleep between attempts.
	DefaultBackoffCap = 5 * time.Second

	// DefaultPollInterval is the pause between job status polls.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollInactivityTimeout is how long polling tolerates no
	// observable progress before giving up.
	DefaultPollInactivityTimeout = 60 * time.Second
)

// Config holds the tunables of a Client. Use DefaultConfig to get a
// properly initialized value, then adjust fields as needed.
//
// Example:
//
//	cfg := engine.DefaultConfig()
//	cfg.Timeout = 10 * time.Minute
//	c := engine.New("https://api.example.com", engine.WithConfig(cfg))
type Config struct {
	// =======================================================================
	// Call Timeouts
	// =======================================================================

	// Timeout bounds one logical call: every retry attempt, the backoff
	// sleeps between them, and the refresh replay all share this budget.
	//
	// Default: 4m
	Timeout time.Duration

	// AttemptTimeout bounds each individual HTTP attempt. Streaming
	// downloads ignore it so large payloads can drain at their own pace.
	//
	// Default: 15s
	AttemptTimeout time.Duration

	// =======================================================================
	// Retry Policy
	// =======================================================================

	// RetryCount is the maximum number of attempts for one send,
	// including the first.
	//
	// Default: 20
	RetryCount int

	// BackoffCap limits the exponential sleep between attempts. The
	// sequence doubles from one second up to this cap.
	//
	// Default: 5s
	BackoffCap time.Duration

	// =======================================================================
	// Job Polling
	// =======================================================================

	// PollInterval is the fixed pause between status polls of an
	// asynchronous job.
	//
	// Default: 5s
	PollInterval time.Duration

	// PollInactivityTimeout bounds how long polling continues without
	// observing a status change or a fresher update timestamp.
	//
	// Default: 60s
	PollInactivityTimeout time.Duration

	// =======================================================================
	// Connection Pool
	// =======================================================================

	// MaxIdleConns caps idle keep-alive connections across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle connections kept per host. The
	// client talks to a single API host, so this is kept close to
	// MaxIdleConns.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout is the maximum wait for a TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// DialTimeout is the maximum wait for TCP connection establishment.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration
}

// DefaultConfig returns the balanced configuration used by New when no
// WithConfig option is given.
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		AttemptTimeout: DefaultAttemptTimeout,

		RetryCount: DefaultRetryCount,
		BackoffCap: DefaultBackoffCap,

		PollInterval:          DefaultPollInterval,
		PollInactivityTimeout: DefaultPollInactivityTimeout,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialTimeout:         5 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// internalConfig aggregates the public Config with the pieces wired by
// individual options.
type internalConfig struct {
	config Config

	transport http.RoundTripper
	logger    zerolog.Logger

	userAgent string
	headers   map[string]string

	tlsConfig *tls.Config
	proxyURL  *url.URL

	rateLimiter    *rate.Limiter
	breakerConfig  *gobreaker.Settings
	tracerProvider trace.TracerProvider
	metrics        *Metrics

	refresh RefreshFunc
}

func newInternalConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		config:    DefaultConfig(),
		logger:    zerolog.Nop(),
		userAgent: "anonclient-go/" + Version,
		headers:   map[string]string{"X-Accept-Created": "yes"},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// buildTransport assembles the http.Transport from the configuration.
// Only used when WithTransport did not supply one.
func (cfg *internalConfig) buildTransport() http.RoundTripper {
	if cfg.transport != nil {
		return cfg.transport
	}
	hc := cfg.config

	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        hc.MaxIdleConns,
		MaxIdleConnsPerHost: hc.MaxIdleConnsPerHost,
		IdleConnTimeout:     hc.IdleConnTimeout,
		TLSHandshakeTimeout: hc.TLSHandshakeTimeout,
		TLSClientConfig:     cfg.tlsConfig,
		Proxy:               http.ProxyFromEnvironment,
	}
	if cfg.proxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.proxyURL)
	}
	return transport
}

// Option configures the Client.
type Option func(*internalConfig)

// WithConfig replaces the whole Config. Start from DefaultConfig and
// adjust fields rather than building a Config from scratch.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) { cfg.config = c }
}

// WithTimeout overrides the logical-call timeout only.
func WithTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) { cfg.config.Timeout = d }
}

// WithRetryCount overrides the maximum attempts per send.
func WithRetryCount(n int) Option {
	return func(cfg *internalConfig) { cfg.config.RetryCount = n }
}

// WithTransport supplies a custom base RoundTripper. Used by tests to
// inject a mock transport and by callers with bespoke transport needs.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) { cfg.transport = rt }
}

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) { cfg.logger = logger }
}

// WithUserAgent overrides the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(cfg *internalConfig) { cfg.userAgent = ua }
}

// WithHeader adds a default header stamped on every request.
func WithHeader(name, value string) Option {
	return func(cfg *internalConfig) { cfg.headers[name] = value }
}

// WithTLSConfig sets the TLS client configuration.
func WithTLSConfig(tc *tls.Config) Option {
	return func(cfg *internalConfig) { cfg.tlsConfig = tc }
}

// WithProxy routes all requests through the given proxy.
func WithProxy(u *url.URL) Option {
	return func(cfg *internalConfig) { cfg.proxyURL = u }
}

// WithRateLimit throttles outgoing attempts to rps requests per second
// with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *internalConfig) {
		cfg.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker wraps the transport in a circuit breaker with the given
// settings.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(cfg *internalConfig) { cfg.breakerConfig = &settings }
}

// WithTracerProvider enables per-attempt tracing spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) { cfg.tracerProvider = tp }
}

// WithMetrics registers Prometheus instruments for requests, retries,
// refreshes and polls.
func WithMetrics(m *Metrics) Option {
	return func(cfg *internalConfig) { cfg.metrics = m }
}

// WithRefreshFunc installs the credential refresh hook invoked when the
// server reports expired credentials.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(cfg *internalConfig) { cfg.refresh = fn }
}
