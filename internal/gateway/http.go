package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"DocChat/internal/backend"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TokenFunc adapts a function to TokenSource
type TokenFunc func() string

func (f TokenFunc) Token() string {
	return f()
}

// Config holds HTTP gateway settings
type Config struct {
	BaseURL string
	Timeout time.Duration
	Tracer  trace.Tracer // optional
	Meter   metric.Meter // optional
}

// HTTPGateway implements Gateway against the document chat REST API
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

var _ Gateway = (*HTTPGateway)(nil)

// New creates an HTTP gateway. tokens may be nil when no call needs auth.
func New(cfg Config, tokens TokenSource, logger *slog.Logger) (*HTTPGateway, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("gateway")
	}
	if cfg.Meter == nil {
		cfg.Meter = metricnoop.NewMeterProvider().Meter("gateway")
	}

	histogram, err := cfg.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	g := &HTTPGateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
		tracer:     cfg.Tracer,
		duration:   histogram,
	}

	logger.Info("created API gateway", "url", g.baseURL, "timeout", cfg.Timeout)
	return g, nil
}

// Upload sends the document as multipart form data
func (g *HTTPGateway) Upload(ctx context.Context, name string, body io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile(backend.UploadField, name)
	if err != nil {
		return UploadResult{}, &ServerError{Detail: UnknownDetail, Err: fmt.Errorf("failed to create form file: %w", err)}
	}
	if _, err := io.Copy(part, body); err != nil {
		return UploadResult{}, &ServerError{Detail: UnknownDetail, Err: fmt.Errorf("failed to read document: %w", err)}
	}
	if err := form.Close(); err != nil {
		return UploadResult{}, &ServerError{Detail: UnknownDetail, Err: fmt.Errorf("failed to finish form: %w", err)}
	}

	req, err := g.newRequest(ctx, http.MethodPost, backend.PathUpload, &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp backend.UploadResponse
	if err := g.do(req, "upload", &resp); err != nil {
		return UploadResult{}, unauthorizedAs(err, ErrUnauthorized)
	}
	if resp.SessionID == "" {
		return UploadResult{}, &ServerError{Status: http.StatusOK, Detail: "No session received from server"}
	}

	documentName := resp.Filename
	if documentName == "" {
		documentName = name
	}

	g.logger.Info("document uploaded", "session_id", resp.SessionID, "filename", documentName)
	return UploadResult{SessionID: resp.SessionID, DocumentName: documentName}, nil
}

// Ask posts a question for the given session
func (g *HTTPGateway) Ask(ctx context.Context, question, sessionID string) (Answer, error) {
	req, err := g.newJSONRequest(ctx, backend.PathChat, backend.ChatRequest{
		Question:  question,
		SessionID: sessionID,
	})
	if err != nil {
		return Answer{}, err
	}

	var resp backend.ChatResponse
	if err := g.do(req, "chat", &resp); err != nil {
		return Answer{}, unauthorizedAs(err, ErrUnauthorized)
	}

	return Answer{Text: resp.Answer, Evidence: resp.Sources}, nil
}

// Authenticate logs in with email and password
func (g *HTTPGateway) Authenticate(ctx context.Context, email, password string) (Credential, error) {
	req, err := g.newJSONRequest(ctx, backend.PathLogin, backend.CredentialsRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return Credential{}, err
	}

	var resp backend.LoginResponse
	if err := g.do(req, "login", &resp); err != nil {
		return Credential{}, unauthorizedAs(err, ErrInvalidCredentials)
	}
	if resp.AccessToken == "" {
		return Credential{}, &ServerError{Status: http.StatusOK, Detail: "No token received from server"}
	}

	return Credential{Token: resp.AccessToken, UserID: resp.UserID}, nil
}

// Signup registers a new account
func (g *HTTPGateway) Signup(ctx context.Context, email, password string) error {
	req, err := g.newJSONRequest(ctx, backend.PathSignup, backend.CredentialsRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return err
	}

	// Signup never carries a token, so a 401 is just a refusal.
	if err := g.do(req, "signup", nil); err != nil {
		return err
	}
	return nil
}

func (g *HTTPGateway) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &ServerError{Detail: UnknownDetail, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}
	req, err := g.newRequest(ctx, http.MethodPost, path, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (g *HTTPGateway) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, &ServerError{Detail: UnknownDetail, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if g.tokens != nil {
		if token := g.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out. Every failure comes back
// as a *ServerError; callers decide what a 401 means for them.
func (g *HTTPGateway) do(req *http.Request, op string, out any) error {
	ctx, span := g.tracer.Start(req.Context(), "gateway."+op)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	status := 0
	defer func() {
		g.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("operation", op),
				attribute.Int("status", status),
			),
		)
	}()

	err := g.roundTrip(req, out, &status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("API call failed", "operation", op, "status", status, "error", err)
		return err
	}

	span.SetAttributes(attribute.Int("http.status_code", status))
	return nil
}

func (g *HTTPGateway) roundTrip(req *http.Request, out any, status *int) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &ServerError{Detail: UnknownDetail, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()
	*status = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServerError{Status: resp.StatusCode, Detail: UnknownDetail, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := UnknownDetail
		var errResp backend.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.DetailText() != "" {
			detail = errResp.DetailText()
		}
		return &ServerError{Status: resp.StatusCode, Detail: detail}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ServerError{Status: resp.StatusCode, Detail: "Invalid response from server", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return nil
}

// unauthorizedAs turns a 401 ServerError into sentinel, keeping the detail.
func unauthorizedAs(err error, sentinel error) error {
	var serr *ServerError
	if errors.As(err, &serr) && serr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", sentinel, serr.Detail)
	}
	return err
}
