package waitlist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/akeren/course-waitlist-api/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newHandlerEngine(service WaitlistService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := submitWaitlistHandler(service)
	engine.POST("/api/waitlist", func(c *gin.Context) {
		result := handler(c)
		c.JSON(result.StatusCode, result.ToJSON())
	})
	return engine
}

func postSubmission(t *testing.T, engine *gin.Engine, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/waitlist", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "waitlist-test")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestSubmitWaitlistHandler_MalformedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := newHandlerEngine(NewMockWaitlistService(ctrl))

	for name, body := range map[string]string{
		"truncated":       `{"firstName": "Jane"`,
		"array":           `[]`,
		"empty":           ``,
		"trailing":        `{"firstName":"Jane","lastName":"Doe","email":"jane@example.com","token":"tok"} }{not json`,
		"trailing word":   `{"firstName":"a"} garbage`,
		"second object":   `{"firstName":"Jane"} {"lastName":"Doe"}`,
		"type and suffix": `{"firstName": 42} ]`,
	} {
		t.Run(name, func(t *testing.T) {
			rec, env := postSubmission(t, engine, body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, MessageInvalidJSON, env.Message)
		})
	}
}

func TestSubmitWaitlistHandler_WrongFieldType(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := newHandlerEngine(NewMockWaitlistService(ctrl))

	rec, env := postSubmission(t, engine, `{"firstName": 42, "lastName": "Doe"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation failed: Invalid type for field firstName. Expected string.", env.Message)
}

func TestSubmitWaitlistHandler_AllowsTrailingWhitespace(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := NewMockWaitlistService(ctrl)
	engine := newHandlerEngine(service)
	service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).Return(&SubmissionResponse{Email: "jane@example.com"}, nil)

	rec, env := postSubmission(t, engine, "{\"firstName\":\"Jane\"}\n\t ")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, MessageSubmitted, env.Message)
}

func TestSubmitWaitlistHandler_Created(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := NewMockWaitlistService(ctrl)
	engine := newHandlerEngine(service)

	service.EXPECT().
		Submit(gomock.Any(), &SubmitWaitlistRequest{FirstName: "Jane", LastName: "Doe", Email: "Jane@Example.com", Token: "tok"}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *SubmitWaitlistRequest, client ClientInfo) (*SubmissionResponse, error) {
			assert.Equal(t, "waitlist-test", client.UserAgent)
			assert.NotEmpty(t, client.IP)
			return &SubmissionResponse{Email: "jane@example.com", SubmittedAt: "2026-10-14T09:30:00Z"}, nil
		})

	rec, env := postSubmission(t, engine, `{"firstName":"Jane","lastName":"Doe","email":"Jane@Example.com","token":"tok"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusCreated, env.Code)
	assert.Equal(t, MessageSubmitted, env.Message)

	var data SubmissionResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "jane@example.com", data.Email)
	assert.Equal(t, "2026-10-14T09:30:00Z", data.SubmittedAt)
}

func TestSubmitWaitlistHandler_MapsServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err     error
		status  int
		message string
	}{
		"forbidden": {apperrors.NewForbiddenError(MessageVerificationFailed, nil), http.StatusForbidden, MessageVerificationFailed},
		"conflict":  {apperrors.NewConflictError(MessageDuplicateEmail, nil), http.StatusConflict, MessageDuplicateEmail},
		"persist":   {apperrors.NewDatabaseError(MessagePersistFailed, nil), http.StatusInternalServerError, MessagePersistFailed},
		"invalid":   {apperrors.NewValidationError([]string{"Email is required."}), http.StatusBadRequest, "Validation failed: Email is required."},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			service := NewMockWaitlistService(ctrl)
			engine := newHandlerEngine(service)
			service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tc.err)

			rec, env := postSubmission(t, engine, `{"firstName":"Jane"}`)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, env.Message)
		})
	}
}
