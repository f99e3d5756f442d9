// Package captcha verifies reCAPTCHA v3 tokens against Google's siteverify API.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/constants"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

const maxResponseBytes = 64 << 10

var (
	ErrSecretNotConfigured = errors.New("captcha: secret key is not configured")
	ErrMissingToken        = errors.New("captcha: token is empty")
	ErrMissingScore        = errors.New("captcha: response has no score")
)

// Verifier decides whether a client token came from a human.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

type Config struct {
	SecretKey string
	VerifyURL string
	MinScore  float64
	Timeout   time.Duration
}

// Result is the decoded siteverify answer plus the threshold decision.
type Result struct {
	Success     bool     `json:"success"`
	Score       *float64 `json:"score"`
	Action      string   `json:"action"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`

	Human bool `json:"-"`
}

type RecaptchaVerifier struct {
	secretKey string
	verifyURL string
	minScore  float64
	client    *http.Client
	logger    *log.Logger
}

func NewRecaptchaVerifier(cfg Config, client *http.Client, logger *log.Logger) *RecaptchaVerifier {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	// Zero is a real threshold; only a negative or NaN score falls back.
	if cfg.MinScore < 0 || math.IsNaN(cfg.MinScore) {
		cfg.MinScore = constants.DefaultMinHumanScore
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = log.NewLoggerWithJSONOutput()
	}

	return &RecaptchaVerifier{
		secretKey: strings.TrimSpace(cfg.SecretKey),
		verifyURL: cfg.VerifyURL,
		minScore:  cfg.MinScore,
		client:    client,
		logger:    logger,
	}
}

func (v *RecaptchaVerifier) Configured() bool { return v.secretKey != "" }

// Verify fails closed: every error path, including a missing secret, answers false.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) bool {
	logger := log.GetLoggerInstanceFromContext(ctx, v.logger)

	result, err := v.Check(ctx, token, remoteIP)
	if err != nil {
		logger.Error("reCAPTCHA verification error", "error", err)
		return false
	}

	logger.Info("reCAPTCHA verification response",
		"success", result.Success,
		"score", result.ScoreValue(),
		"action", result.Action,
		"hostname", result.Hostname,
		"error_codes", result.ErrorCodes,
		"human", result.Human,
	)

	return result.Human
}

// Check performs one siteverify round trip. It never retries: tokens are single use.
func (v *RecaptchaVerifier) Check(ctx context.Context, token, remoteIP string) (*Result, error) {
	ctx, span := otel.Tracer("github.com/akeren/course-waitlist-api/pkg/captcha").Start(ctx, "captcha.verify")
	defer span.End()

	result, err := v.check(ctx, token, remoteIP)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("captcha.success", result.Success),
		attribute.Float64("captcha.score", result.ScoreValue()),
		attribute.Bool("captcha.human", result.Human),
	)
	return result, nil
}

func (v *RecaptchaVerifier) check(ctx context.Context, token, remoteIP string) (*Result, error) {
	if v.secretKey == "" {
		return nil, ErrSecretNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", v.secretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("captcha: siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("captcha: siteverify returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, fmt.Errorf("captcha: decode siteverify response: %w", err)
	}
	if !result.Success {
		return &result, nil
	}
	if result.Score == nil {
		return nil, ErrMissingScore
	}

	result.Human = *result.Score >= v.minScore
	return &result, nil
}

// ScoreValue is the reported score, or 0 when the provider sent none.
func (r *Result) ScoreValue() float64 {
	if r == nil || r.Score == nil {
		return 0
	}
	return *r.Score
}
