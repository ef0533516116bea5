package findcourse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/findcourse-client/centers"
	"github.com/jrsteele09/findcourse-client/metrics"
	"github.com/jrsteele09/findcourse-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://findcourse.net.uz/api"
	defaultCallTimeout = 15 * time.Second
	requestIDHeader    = "X-Request-ID"
	maxBodyBytes       = 4 << 20
)

var (
	errServerStatus = errors.New("server error status")
	errCircuitOpen  = errors.New("service temporarily unavailable")
)

// Route paths relative to the base URL.
const (
	RouteLogin        = "/users/login"
	RouteRefreshToken = "/users/refreshToken"
	RouteMyData       = "/users/mydata"
	RouteUsers        = "/users"
	RouteUpload       = "/upload"
	RouteLiked        = "/liked"
	RouteCenters      = "/centers"
)

// Client calls the findcourse REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds each call. It applies to a copy of the client given to
// WithHTTPClient, whichever order the options come in.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit caps outgoing requests; rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker stops sending requests for cooldown after failures
// consecutive transport errors or 5xx responses. failures 0 disables it.
func WithCircuitBreaker(failures uint32, cooldown time.Duration) ClientOption {
	return func(c *Client) {
		if failures == 0 {
			c.breaker = nil
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "findcourse-api",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				// A caller giving up says nothing about the server.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		})
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

func New(baseURL string, options ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultCallTimeout},
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds users.Credentials) Result[TokenPair] {
	res := send[TokenPair](ctx, c, request{
		endpoint: "login",
		method:   http.MethodPost,
		path:     RouteLogin,
		body:     loginRequest{Email: creds.Email, Password: creds.Password},
	})
	if res.OK && (res.Data.AccessToken == "" || res.Data.RefreshToken == "") {
		return failure[TokenPair](KindDecode, res.Status, "login response missing tokens")
	}
	return res
}

// Refresh exchanges a refresh token for a new access token. A response without
// an access token is a failure.
func (c *Client) Refresh(ctx context.Context, refreshToken string) Result[TokenPair] {
	res := send[TokenPair](ctx, c, request{
		endpoint: "refresh",
		method:   http.MethodPost,
		path:     RouteRefreshToken,
		body:     refreshRequest{RefreshToken: refreshToken},
	})
	if res.OK && res.Data.AccessToken == "" {
		return failure[TokenPair](KindDecode, res.Status, "refresh response missing access token")
	}
	return res
}

// MyData fetches the profile of the token's owner.
func (c *Client) MyData(ctx context.Context, accessToken string) Result[users.Profile] {
	return send[users.Profile](ctx, c, request{
		endpoint: "mydata",
		method:   http.MethodGet,
		path:     RouteMyData,
		token:    accessToken,
	})
}

// UpdateUser sends only the fields set in update.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, id int, update users.ProfileUpdate) Result[users.Profile] {
	return send[users.Profile](ctx, c, request{
		endpoint: "update_user",
		method:   http.MethodPatch,
		path:     path.Join(RouteUsers, strconv.Itoa(id)),
		token:    accessToken,
		body:     update,
	})
}

func (c *Client) DeleteUser(ctx context.Context, accessToken string, id int) Result[struct{}] {
	return send[struct{}](ctx, c, request{
		endpoint: "delete_user",
		method:   http.MethodDelete,
		path:     path.Join(RouteUsers, strconv.Itoa(id)),
		token:    accessToken,
	})
}

// UploadImage posts a multipart form with the file under "image" and returns
// the stored filename.
func (c *Client) UploadImage(ctx context.Context, accessToken, filename string, r io.Reader) Result[string] {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return failure[string](KindValidation, 0, fmt.Sprintf("failed to build upload: %v", err))
	}
	if _, err := io.Copy(part, r); err != nil {
		return failure[string](KindValidation, 0, fmt.Sprintf("failed to read upload: %v", err))
	}
	if err := mw.Close(); err != nil {
		return failure[string](KindValidation, 0, fmt.Sprintf("failed to build upload: %v", err))
	}

	return send[string](ctx, c, request{
		endpoint:    "upload",
		method:      http.MethodPost,
		path:        RouteUpload,
		token:       accessToken,
		raw:         &buf,
		contentType: mw.FormDataContentType(),
	})
}

func (c *Client) Liked(ctx context.Context, accessToken string) Result[[]LikedItem] {
	return send[[]LikedItem](ctx, c, request{
		endpoint: "liked",
		method:   http.MethodGet,
		path:     RouteLiked,
		token:    accessToken,
	})
}

func (c *Client) Like(ctx context.Context, accessToken string, centerID int) Result[LikedItem] {
	return send[LikedItem](ctx, c, request{
		endpoint: "like",
		method:   http.MethodPost,
		path:     RouteLiked,
		token:    accessToken,
		body:     likeRequest{CenterID: centerID},
	})
}

func (c *Client) Unlike(ctx context.Context, accessToken string, likeID int) Result[struct{}] {
	return send[struct{}](ctx, c, request{
		endpoint: "unlike",
		method:   http.MethodDelete,
		path:     path.Join(RouteLiked, strconv.Itoa(likeID)),
		token:    accessToken,
	})
}

// Centers lists every center; the listing is public.
func (c *Client) Centers(ctx context.Context) Result[[]centers.Center] {
	return send[[]centers.Center](ctx, c, request{
		endpoint: "centers",
		method:   http.MethodGet,
		path:     RouteCenters,
	})
}

type request struct {
	endpoint    string // Metrics and log label
	method      string
	path        string
	token       string    // Bearer access token, empty for public routes
	body        any       // JSON encoded when set
	raw         io.Reader // Sent as is with contentType when set
	contentType string
}

// httpClient returns the client to use for a call, attaching the bearer token
// through an oauth2 transport when one is given.
func (c *Client) httpClient(token string) *http.Client {
	if token == "" {
		return c.http
	}
	return &http.Client{
		Timeout: c.http.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.http.Transport,
		},
	}
}

func send[T any](ctx context.Context, c *Client, req request) Result[T] {
	status, payload, err := c.roundTrip(ctx, req)
	if err != nil {
		return failure[T](KindTransport, 0, err.Error())
	}

	if status < 200 || status > 299 {
		return failure[T](kindForStatus(status), status, errorMessage(status, payload))
	}

	var data T
	if err := decodeData(payload, &data); err != nil {
		c.logger.Debug().Str("endpoint", req.endpoint).Err(err).Msg("unexpected response shape")
		return failure[T](KindDecode, status, fmt.Sprintf("unexpected %s response", req.endpoint))
	}
	return success(data, status)
}

func (c *Client) roundTrip(ctx context.Context, req request) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body := req.raw
	contentType := req.contentType
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s request: %w", req.endpoint, err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", req.endpoint, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	requestID := uuid.New().String()
	httpReq.Header.Set(requestIDHeader, requestID)

	return c.execute(c.httpClient(req.token), httpReq, req.endpoint, requestID)
}

// execute sends httpReq, through the circuit breaker when one is set. Transport
// errors and 5xx responses count against the breaker; while it is open calls
// fail without reaching the network.
func (c *Client) execute(hc *http.Client, httpReq *http.Request, endpoint, requestID string) (int, []byte, error) {
	if c.breaker == nil {
		return c.do(hc, httpReq, endpoint, requestID)
	}

	var (
		status  int
		payload []byte
	)
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var err error
		status, payload, err = c.do(hc, httpReq, endpoint, requestID)
		if err == nil && status >= 500 {
			return nil, errServerStatus
		}
		return nil, err
	})
	switch {
	case err == nil, errors.Is(err, errServerStatus):
		return status, payload, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Debug().Str("endpoint", endpoint).Str("request_id", requestID).Msg("circuit open, request not sent")
		return 0, nil, fmt.Errorf("%s request not sent: %w", endpoint, errCircuitOpen)
	}
	return status, payload, err
}

func (c *Client) do(hc *http.Client, httpReq *http.Request, endpoint, requestID string) (int, []byte, error) {
	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		c.metrics.Request(endpoint, 0, time.Since(start))
		c.logger.Debug().Str("endpoint", endpoint).Str("request_id", requestID).Err(err).Msg("request failed")
		return 0, nil, fmt.Errorf("failed to execute %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.Request(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request done")
	return resp.StatusCode, payload, nil
}

// decodeData accepts both {data: T} and a bare T.
func decodeData[T any](payload []byte, out *T) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		if _, ok := any(out).(*struct{}); ok {
			return nil
		}
		return errors.New("empty body")
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(payload, out)
}

func errorMessage(status int, payload []byte) string {
	var body errorBody
	if err := json.Unmarshal(payload, &body); err == nil {
		switch m := body.Message.(type) {
		case string:
			if m != "" {
				return m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(status)
}
