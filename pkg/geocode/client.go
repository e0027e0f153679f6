package geocode

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/resilience"
)

// Option configures a provider.
type Option func(*service)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *service) {
		s.httpClient = hc
	}
}

// WithBaseURL overrides the service endpoint.
func WithBaseURL(u string) Option {
	return func(s *service) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithPacer sets the pacer every request waits on.
func WithPacer(p *Pacer) Option {
	return func(s *service) {
		if p != nil {
			s.pacer = p
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *service) {
		s.retry = cfg
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *service) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// service carries the HTTP plumbing shared by the providers.
type service struct {
	name       string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	pacer      *Pacer
	retry      resilience.RetryConfig
}

func newService(name, baseURL string, opts []Option) service {
	s := service{
		name:       name,
		baseURL:    baseURL,
		userAgent:  "microarea-cli/1.0",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		pacer:      NewPacer(DefaultPacing),
		retry:      resilience.RetryConfig{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.retry.ShouldRetry = retryable
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = resilience.RetryLogger(name, "lookup")
	}
	return s
}

// withRetry runs fn under the service's retry policy.
func withRetry[T any](ctx context.Context, s *service, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, s.retry, fn)
}

// get paces, sends one GET and returns the body of a 200 response. Transport
// failures and transient statuses come back as KindUnavailable, other
// statuses as KindRejected.
func (s *service) get(ctx context.Context, reqURL string, header http.Header) ([]byte, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, newError(KindUnavailable, s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, newError(KindRejected, s.name, eris.Wrap(err, "build request"))
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindUnavailable, s.name, eris.Wrap(err, "request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindUnavailable, s.name, eris.Wrap(err, "read body"))
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, newError(KindUnavailable, s.name, resilience.NewTransientError(statusErr, resp.StatusCode))
		}
		return nil, newError(KindRejected, s.name, statusErr)
	}

	zap.L().Debug("geocode: response",
		zap.String("provider", s.name),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}
