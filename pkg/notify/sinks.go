package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Submission is the copy of an accepted waitlist entry forwarded to marketing tools.
type Submission struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	PageSource string `json:"pageSource"`
	Referrer   string `json:"referrer"`
}

// Sink delivers one submission to one downstream system.
type Sink interface {
	Name() string
	// Configured reports whether the sink has what it needs to send; unconfigured sinks are skipped.
	Configured() bool
	Send(ctx context.Context, submission Submission) error
}

// DeliveryError records a non-2xx answer from a downstream endpoint.
type DeliveryError struct {
	Sink       string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s webhook returned status %d", e.Sink, e.StatusCode)
}

const maxErrorBodyBytes = 4 << 10

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func post(ctx context.Context, client *http.Client, sink, endpoint, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", sink, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", sink, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &DeliveryError{Sink: sink, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return nil
}

// PabblySink posts the submission as JSON to a Pabbly Connect webhook.
type PabblySink struct {
	webhookURL string
	client     *http.Client
}

func NewPabblySink(webhookURL string, client *http.Client, timeout time.Duration) *PabblySink {
	return &PabblySink{
		webhookURL: strings.TrimSpace(webhookURL),
		client:     newHTTPClient(client, timeout),
	}
}

func (s *PabblySink) Name() string { return "pabbly" }

func (s *PabblySink) Configured() bool { return s.webhookURL != "" }

func (s *PabblySink) Send(ctx context.Context, submission Submission) error {
	payload, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("pabbly: encode payload: %w", err)
	}

	return post(ctx, s.client, s.Name(), s.webhookURL, "application/json", bytes.NewReader(payload))
}

const (
	DefaultKeapFormID      = "kq169"
	DefaultKeapFormName    = "fda-landing-page"
	DefaultKeapFormBaseURL = "https://keap.page/form-submit/"

	keapInfusionsoftVersion = "1.70.0.59431"
)

type KeapConfig struct {
	Enabled  bool
	FormID   string
	FormName string
	BaseURL  string
}

// KeapSink submits the hosted Keap web form the landing page used to post directly.
type KeapSink struct {
	cfg    KeapConfig
	client *http.Client
}

func NewKeapSink(cfg KeapConfig, client *http.Client, timeout time.Duration) *KeapSink {
	if cfg.FormID == "" {
		cfg.FormID = DefaultKeapFormID
	}
	if cfg.FormName == "" {
		cfg.FormName = DefaultKeapFormName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultKeapFormBaseURL
	}

	return &KeapSink{cfg: cfg, client: newHTTPClient(client, timeout)}
}

func (s *KeapSink) Name() string { return "keap" }

func (s *KeapSink) Configured() bool { return s.cfg.Enabled }

func (s *KeapSink) FormURL() string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + url.PathEscape(s.cfg.FormID)
}

func (s *KeapSink) Send(ctx context.Context, submission Submission) error {
	form := url.Values{}
	form.Set("inf_form_xid", s.cfg.FormID)
	form.Set("inf_form_name", s.cfg.FormName)
	form.Set("infusionsoft_version", keapInfusionsoftVersion)
	form.Set("inf_field_FirstName", submission.FirstName)
	form.Set("inf_field_LastName", submission.LastName)
	form.Set("inf_field_Email", submission.Email)
	if submission.Phone != "" {
		form.Set("inf_field_Phone1", submission.Phone)
	}

	return post(ctx, s.client, s.Name(), s.FormURL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}
