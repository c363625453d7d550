package capture

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/synheart/synheart-recorder/internal/metrics"
	"github.com/synheart/synheart-recorder/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TruncationMarker is appended to captured bodies cut at the payload limit.
const TruncationMarker = "... [truncated]"

const readFailedPlaceholder = "[failed to read content]"

// Transport is an http.RoundTripper that records one ApiCallEvent per
// exchange, including failed and cancelled ones. Transport errors are
// returned to the caller unchanged.
type Transport struct {
	sink    Sink
	base    http.RoundTripper
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBase sets the wrapped transport. Defaults to http.DefaultTransport.
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) { t.base = rt }
}

// WithTracing wraps the base transport with OpenTelemetry instrumentation.
// Recorded calls then use the request's trace id as correlation id.
func WithTracing() TransportOption {
	return func(t *Transport) { t.base = otelhttp.NewTransport(t.base) }
}

func WithHTTPLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = logger }
}

func WithHTTPMetrics(m *metrics.Metrics) TransportOption {
	return func(t *Transport) { t.metrics = m }
}

func NewTransport(sink Sink, opts ...TransportOption) *Transport {
	t := &Transport{
		sink:   sink,
		base:   http.DefaultTransport,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "http_capture")
	return t
}

// NewClient returns an http.Client whose transport records every call.
func NewClient(sink Sink, opts ...TransportOption) *http.Client {
	return &http.Client{Transport: NewTransport(sink, opts...)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cfg := t.sink.Configuration()
	if !cfg.RecordAPICalls {
		return t.base.RoundTrip(req)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	e := models.APICallEvent{
		EventBase:          models.NewBase(models.EventTypeAPICall, correlationFor(req.Context())),
		HTTPMethod:         method,
		RequestURL:         req.URL.String(),
		RequestContentType: req.Header.Get("Content-Type"),
		RequestHeaders:     redactHeaders(req.Header, cfg),
	}

	if cfg.CaptureAPIPayloads && req.Body != nil && req.Body != http.NoBody {
		req = req.Clone(req.Context())
		e.RequestBody, req.Body = captureBody(req.Body, req.ContentLength, e.RequestContentType, cfg.MaxPayloadSize)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	e.DurationMs = elapsed.Milliseconds()

	if err != nil {
		e.ErrorMessage = err.Error()
		t.record(e)
		t.metrics.ObserveAPICall(method, "error", elapsed)
		return resp, err
	}

	e.StatusCode = resp.StatusCode
	e.ResponseContentType = resp.Header.Get("Content-Type")
	e.ResponseHeaders = redactHeaders(resp.Header, cfg)
	status := strconv.Itoa(resp.StatusCode)

	if cfg.CaptureAPIPayloads && resp.Body != nil && resp.Body != http.NoBody {
		if placeholder, ok := bodyPlaceholder(resp.ContentLength, e.ResponseContentType, cfg.MaxPayloadSize); ok {
			e.ResponseBody = placeholder
		} else {
			// The call is recorded once the caller has consumed or closed the
			// body, so streaming responses reach the caller immediately.
			resp.Body = newRecordingBody(resp.Body, resp.ContentLength, cfg.MaxPayloadSize, func(body string) {
				e.ResponseBody = body
				t.record(e)
				t.metrics.ObserveAPICall(method, status, elapsed)
			})
			return resp, nil
		}
	}

	t.record(e)
	t.metrics.ObserveAPICall(method, status, elapsed)
	return resp, nil
}

func (t *Transport) record(e models.APICallEvent) {
	if _, err := t.sink.AddEvent(e); err != nil {
		t.logger.Warn("failed to record api call", "url", e.RequestURL, "error", err)
	}
}

func redactHeaders(h http.Header, cfg models.RecordingConfiguration) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		if cfg.IsSensitiveHeader(name) {
			out[name] = cfg.MaskText
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// bodyPlaceholder returns the text recorded instead of a body that is
// declared too large or is not textual.
func bodyPlaceholder(contentLength int64, contentType string, maxSize int) (string, bool) {
	if contentLength > int64(maxSize) {
		return fmt.Sprintf("[content too large: %s]", humanize.Bytes(uint64(contentLength))), true
	}
	if mediaType, ok := textual(contentType); !ok {
		return fmt.Sprintf("[binary content: %s]", mediaType), true
	}
	return "", false
}

// captureLimit is enough bytes for maxSize+1 runes of any width.
func captureLimit(maxSize int) int64 {
	return int64(maxSize)*utf8.UTFMax + utf8.UTFMax
}

// captureBody returns the text to record for a request body and a
// replacement body that still yields every byte of the original.
func captureBody(body io.ReadCloser, contentLength int64, contentType string, maxSize int) (string, io.ReadCloser) {
	if placeholder, ok := bodyPlaceholder(contentLength, contentType, maxSize); ok {
		return placeholder, body
	}

	prefix, err := io.ReadAll(io.LimitReader(body, captureLimit(maxSize)))
	restored := &replayBody{Reader: io.MultiReader(bytes.NewReader(prefix), body), closer: body}
	if err != nil {
		return readFailedPlaceholder, restored
	}
	return truncate(string(prefix), maxSize), restored
}

// recordingBody passes a response body through to the caller while keeping
// a capped copy. done runs exactly once: at end of stream, on a read error,
// when the cap or the declared length is reached, or on Close.
type recordingBody struct {
	body    io.ReadCloser
	buf     bytes.Buffer
	limit   int64
	length  int64
	read    int64
	maxSize int
	once    sync.Once
	done    func(string)
}

func newRecordingBody(body io.ReadCloser, contentLength int64, maxSize int, done func(string)) *recordingBody {
	return &recordingBody{
		body:    body,
		limit:   captureLimit(maxSize),
		length:  contentLength,
		maxSize: maxSize,
		done:    done,
	}
}

func (b *recordingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 {
		b.read += int64(n)
		if room := b.limit - int64(b.buf.Len()); room > 0 {
			b.buf.Write(p[:min(int64(n), room)])
		}
	}
	switch {
	case err == io.EOF:
		b.finish(truncate(b.buf.String(), b.maxSize))
	case err != nil:
		b.finish(readFailedPlaceholder)
	case int64(b.buf.Len()) >= b.limit, b.length >= 0 && b.read >= b.length:
		b.finish(truncate(b.buf.String(), b.maxSize))
	}
	return n, err
}

func (b *recordingBody) Close() error {
	b.finish(truncate(b.buf.String(), b.maxSize))
	return b.body.Close()
}

func (b *recordingBody) finish(text string) {
	b.once.Do(func() { b.done(text) })
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// textual reports whether a media type is captured as text. An absent
// content type is treated as text.
func textual(contentType string) (string, bool) {
	if strings.TrimSpace(contentType) == "" {
		return "", true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if strings.HasPrefix(mediaType, "text/") {
		return mediaType, true
	}
	for _, token := range []string{"json", "xml", "html", "javascript"} {
		if strings.Contains(mediaType, token) {
			return mediaType, true
		}
	}
	return mediaType, false
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}
