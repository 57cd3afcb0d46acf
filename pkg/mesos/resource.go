package mesos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Supported request methods.
const (
	MethodHead   = http.MethodHead
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodPatch  = http.MethodPatch
	MethodDelete = http.MethodDelete
)

var methods = map[string]bool{
	MethodHead:   true,
	MethodGet:    true,
	MethodPost:   true,
	MethodPut:    true,
	MethodPatch:  true,
	MethodDelete: true,
}

// Resource defaults.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultUseGzipEncoding = true
	DefaultMaxAttempts     = 3

	// DefaultBackOffInitialInterval is the wait before the first retry.
	// Each further retry doubles it up to DefaultBackOffMaxInterval.
	DefaultBackOffInitialInterval = time.Second
	DefaultBackOffMaxInterval     = 10 * time.Second
)

var (
	jsonHeaders = map[string]string{"Accept": "application/json"}
	gzipHeaders = map[string]string{"Accept-Encoding": "gzip"}
)

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the response body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// RequestObserver is notified once per request attempt.
type RequestObserver interface {
	ObserveRequest(method string, status int, attempt int, duration time.Duration, err error)
}

// Resource encapsulates the context for an HTTP resource on the master:
// its URL and the defaults applied to every request. A Resource is not
// mutated after construction and is safe for concurrent use.
type Resource struct {
	url                    string
	defaultHeaders         map[string]string
	defaultTimeout         time.Duration
	defaultAuth            Auth
	defaultUseGzipEncoding bool
	defaultMaxAttempts     int

	client         *http.Client
	backOffInitial time.Duration
	backOffMax     time.Duration
	limiter        *rate.Limiter
	logger         *zap.Logger
	observer       RequestObserver
}

// ResourceOption configures a Resource.
type ResourceOption func(*Resource)

// WithDefaultHeaders sets headers attached to every request. The map is copied.
func WithDefaultHeaders(headers map[string]string) ResourceOption {
	return func(r *Resource) {
		r.defaultHeaders = copyHeaders(headers)
	}
}

// WithDefaultTimeout sets the per-attempt timeout.
func WithDefaultTimeout(d time.Duration) ResourceOption {
	return func(r *Resource) {
		r.defaultTimeout = d
	}
}

// WithDefaultAuth sets the credential applied to every request.
func WithDefaultAuth(a Auth) ResourceOption {
	return func(r *Resource) {
		r.defaultAuth = a
	}
}

// WithDefaultGzipEncoding toggles Accept-Encoding: gzip.
func WithDefaultGzipEncoding(enabled bool) ResourceOption {
	return func(r *Resource) {
		r.defaultUseGzipEncoding = enabled
	}
}

// WithDefaultMaxAttempts sets the total number of tries for retried requests.
func WithDefaultMaxAttempts(n int) ResourceOption {
	return func(r *Resource) {
		if n > 0 {
			r.defaultMaxAttempts = n
		}
	}
}

// WithHTTPClient sets the client used to send requests.
func WithHTTPClient(c *http.Client) ResourceOption {
	return func(r *Resource) {
		if c != nil {
			r.client = c
		}
	}
}

// WithBackOff sets the retry wait bounds.
func WithBackOff(initial, max time.Duration) ResourceOption {
	return func(r *Resource) {
		r.backOffInitial = initial
		r.backOffMax = max
	}
}

// WithRateLimit paces every attempt to at most rps requests per second.
// Zero or negative means unlimited.
func WithRateLimit(rps float64) ResourceOption {
	return func(r *Resource) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) ResourceOption {
	return func(r *Resource) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRequestObserver sets the per-attempt observer.
func WithRequestObserver(o RequestObserver) ResourceOption {
	return func(r *Resource) {
		r.observer = o
	}
}

// NewResource creates a Resource rooted at rawURL.
func NewResource(rawURL string, opts ...ResourceOption) (*Resource, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid url %q", rawURL), Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &Error{Message: fmt.Sprintf("invalid url %q: scheme and host are required", rawURL)}
	}

	r := &Resource{
		url:                    u.String(),
		defaultHeaders:         map[string]string{},
		defaultTimeout:         DefaultTimeout,
		defaultUseGzipEncoding: DefaultUseGzipEncoding,
		defaultMaxAttempts:     DefaultMaxAttempts,
		client:                 http.DefaultClient,
		backOffInitial:         DefaultBackOffInitialInterval,
		backOffMax:             DefaultBackOffMaxInterval,
		logger:                 zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// URL returns the resource URL.
func (r *Resource) URL() string { return r.url }

// DefaultHeaders returns a copy of the default headers.
func (r *Resource) DefaultHeaders() map[string]string { return copyHeaders(r.defaultHeaders) }

// DefaultTimeout returns the per-attempt timeout.
func (r *Resource) DefaultTimeout() time.Duration { return r.defaultTimeout }

// DefaultAuth returns the default credential, or nil.
func (r *Resource) DefaultAuth() Auth { return r.defaultAuth }

// DefaultUseGzipEncoding reports whether gzip is requested by default.
func (r *Resource) DefaultUseGzipEncoding() bool { return r.defaultUseGzipEncoding }

// DefaultMaxAttempts returns the default number of tries.
func (r *Resource) DefaultMaxAttempts() int { return r.defaultMaxAttempts }

// Subresource returns a new Resource at subpath of this resource's URL,
// carrying the same defaults.
func (r *Resource) Subresource(subpath string) *Resource {
	sub := *r
	sub.url = simpleURLJoin(r.url, subpath)
	sub.defaultHeaders = r.DefaultHeaders()
	return &sub
}

// simpleURLJoin joins with a single '/'. url.ResolveReference would drop the
// last path segment of base.
func simpleURLJoin(base, other string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(other, "/")
}

type requestOptions struct {
	headers     map[string]string
	timeout     *time.Duration
	auth        Auth
	gzip        *bool
	params      url.Values
	retry       bool
	maxAttempts int
	body        []byte
	contentType string
	payload     any
	decoder     Decoder
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

// WithHeaders adds request headers on top of the defaults.
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = &d
	}
}

// WithAuth overrides the credential.
func WithAuth(a Auth) RequestOption {
	return func(o *requestOptions) {
		o.auth = a
	}
}

// WithGzipEncoding overrides the gzip default.
func WithGzipEncoding(enabled bool) RequestOption {
	return func(o *requestOptions) {
		o.gzip = &enabled
	}
}

// WithParams adds query parameters.
func WithParams(params url.Values) RequestOption {
	return func(o *requestOptions) {
		o.params = params
	}
}

// WithRetry toggles the retry policy. Retry is on by default.
func WithRetry(enabled bool) RequestOption {
	return func(o *requestOptions) {
		o.retry = enabled
	}
}

// WithMaxAttempts overrides the number of tries.
func WithMaxAttempts(n int) RequestOption {
	return func(o *requestOptions) {
		o.maxAttempts = n
	}
}

// WithBody sets a raw request body.
func WithBody(contentType string, body []byte) RequestOption {
	return func(o *requestOptions) {
		o.contentType = contentType
		o.body = body
	}
}

// WithJSONPayload sets a body encoded as JSON.
func WithJSONPayload(v any) RequestOption {
	return func(o *requestOptions) {
		o.payload = v
	}
}

// Decoder converts a parsed JSON document into a caller-specific value.
type Decoder func(v any) (any, error)

// WithDecoder sets the decoder applied by RequestJSON.
func WithDecoder(d Decoder) RequestOption {
	return func(o *requestOptions) {
		o.decoder = d
	}
}

func buildRequestOptions(opts []RequestOption) *requestOptions {
	o := &requestOptions{retry: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request sends an HTTP request to the resource URL.
//
// With retry enabled, transport failures and 500/503 responses are retried
// with exponential backoff until max attempts is reached; the last failure
// is returned unchanged. Other status failures are returned on first
// occurrence. Transport failures are always wrapped in *Error.
func (r *Resource) Request(ctx context.Context, method string, opts ...RequestOption) (*Response, error) {
	o := buildRequestOptions(opts)

	if !methods[method] {
		return nil, &Error{Message: fmt.Sprintf("unsupported method %q", method)}
	}
	if o.payload != nil {
		data, err := json.Marshal(o.payload)
		if err != nil {
			return nil, &Error{Message: "could not encode JSON payload", Err: err}
		}
		o.body = data
		o.contentType = "application/json"
	}

	if !o.retry {
		return r.send(ctx, method, o, 1)
	}

	maxAttempts := o.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.defaultMaxAttempts
	}

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		resp, err := r.send(ctx, method, o, attempt)
		if err != nil && !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("Retrying master request",
			zap.String("method", method),
			zap.String("url", r.url),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	resp, err := backoff.RetryNotifyWithData(operation, r.newBackOff(ctx, maxAttempts), notify)
	if err != nil {
		return nil, wrapTransport(err)
	}
	return resp, nil
}

// wrapTransport wraps errors the retry loop surfaces on its own, such as
// context expiry between attempts.
func wrapTransport(err error) error {
	var base *Error
	var httpErr *HTTPError
	if errors.As(err, &base) || errors.As(err, &httpErr) {
		return err
	}
	return &Error{Message: "request failed", Err: err}
}

func (r *Resource) newBackOff(ctx context.Context, maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backOffInitial
	b.MaxInterval = r.backOffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
}

// send performs a single attempt.
func (r *Resource) send(ctx context.Context, method string, o *requestOptions, attempt int) (*Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &Error{Message: "request failed", Err: err}
		}
	}

	timeout := r.defaultTimeout
	if o.timeout != nil {
		timeout = *o.timeout
	}
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	headers := r.DefaultHeaders()
	for k, v := range o.headers {
		headers[k] = v
	}
	useGzip := r.defaultUseGzipEncoding
	if o.gzip != nil {
		useGzip = *o.gzip
	}
	if useGzip {
		for k, v := range gzipHeaders {
			headers[k] = v
		}
	}

	target := r.url
	if len(o.params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + o.params.Encode()
	}

	var body io.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, &Error{Message: "request failed", Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if o.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", o.contentType)
	}

	auth := r.defaultAuth
	if o.auth != nil {
		auth = o.auth
	}
	if auth != nil {
		if err := auth.Apply(req); err != nil {
			return nil, &Error{Message: "could not apply credentials", Err: err}
		}
	}

	start := time.Now()
	httpResp, err := r.client.Do(req)
	if err != nil {
		wrapped := &Error{Message: "request failed", Err: err}
		r.observe(method, 0, attempt, time.Since(start), wrapped)
		return nil, wrapped
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := readBody(httpResp)
	if err != nil {
		wrapped := &Error{Message: "request failed", Err: err}
		r.observe(method, httpResp.StatusCode, attempt, time.Since(start), wrapped)
		return nil, wrapped
	}

	resp := &Response{
		URL:        req.URL.String(),
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		r.observe(method, resp.StatusCode, attempt, time.Since(start), nil)
		return resp, nil
	}

	herr := StatusError(resp)
	r.observe(method, resp.StatusCode, attempt, time.Since(start), herr)
	return nil, herr
}

func (r *Resource) observe(method string, status, attempt int, d time.Duration, err error) {
	if r.observer != nil {
		r.observer.ObserveRequest(method, status, attempt, d, err)
	}
}

// readBody reads the full body, decoding gzip when the master compressed it.
// The transport leaves compressed bodies alone once Accept-Encoding is set
// explicitly.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

// isTransient reports whether a transport failure is a connection problem or
// timeout rather than a caller error.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}
	return false
}

// RequestJSON sends a request with Accept: application/json and parses the
// body. When a Decoder is supplied it is applied to the parsed document.
func (r *Resource) RequestJSON(ctx context.Context, method string, opts ...RequestOption) (any, error) {
	o := buildRequestOptions(opts)

	all := make([]RequestOption, 0, len(opts)+1)
	all = append(all, opts...)
	all = append(all, WithHeaders(jsonHeaders))

	resp, err := r.Request(ctx, method, all...)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &Error{Message: fmt.Sprintf("could not load JSON from \"%s\"", resp.Text()), Err: err}
	}
	if o.decoder != nil {
		return o.decoder(doc)
	}
	return doc, nil
}

// GetJSON sends a GET request and parses the JSON response.
func (r *Resource) GetJSON(ctx context.Context, opts ...RequestOption) (any, error) {
	return r.RequestJSON(ctx, MethodGet, opts...)
}

// PostJSON sends payload as a JSON POST and parses the JSON response.
func (r *Resource) PostJSON(ctx context.Context, payload any, opts ...RequestOption) (any, error) {
	all := make([]RequestOption, 0, len(opts)+1)
	all = append(all, WithJSONPayload(payload))
	all = append(all, opts...)
	return r.RequestJSON(ctx, MethodPost, all...)
}

func copyHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
