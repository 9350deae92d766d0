package sdk

import (
	"net/http"
	"net/http/httputil"
	"regexp"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type MiddlewareNext = func(*http.Request) (*http.Response, error)
type Middleware = func(*http.Request, MiddlewareNext) (*http.Response, error)

type config struct {
	baseURL     string
	httpClient  *http.Client
	dialer      *websocket.Dialer
	maxRetries  uint
	retryWait   time.Duration
	memberToken string
	middlewares []Middleware
}

// Option configures a Client.
type Option func(*config)

func WithBaseURL(baseURL string) Option {
	return func(c *config) { c.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithMaxRetries bounds how often a 503 from a busy room store is retried.
// Zero disables retries.
func WithMaxRetries(n uint) Option {
	return func(c *config) { c.maxRetries = n }
}

func WithRetryWait(d time.Duration) Option {
	return func(c *config) { c.retryWait = d }
}

// WithMemberToken sends the token as X-Member-Token on every request.
func WithMemberToken(token string) Option {
	return func(c *config) { c.memberToken = token }
}

func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) { c.middlewares = append(c.middlewares, mw...) }
}

var sensitiveHeaderRegex = regexp.MustCompile(`(?im)^(Cookie|Set-Cookie|X-Member-Token): .+$`)

func redactSensitiveHeaders(s string) string {
	return sensitiveHeaderRegex.ReplaceAllString(s, "$1: [REDACTED]")
}

// WithDebugLog dumps every request and response at debug level.
func WithDebugLog(logger zerolog.Logger) Option {
	return WithMiddleware(func(r *http.Request, next MiddlewareNext) (*http.Response, error) {
		if dump, err := httputil.DumpRequestOut(r, true); err == nil {
			logger.Debug().Str("dump", redactSensitiveHeaders(string(dump))).Msg("request")
		}

		resp, err := next(r)
		if resp != nil {
			if dump, err := httputil.DumpResponse(resp, true); err == nil {
				logger.Debug().Str("dump", redactSensitiveHeaders(string(dump))).Msg("response")
			}
		}
		if err != nil {
			logger.Debug().Err(err).Msg("request error")
		}
		return resp, err
	})
}
