package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"

	"greenroom/internal/config"
	"greenroom/internal/mailer"
	"greenroom/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// The Prometheus middleware registers collectors in the default registry, so
// the full server can only be constructed once per test binary.
var (
	integrationOnce sync.Once
	integrationApp  *fiber.App
	integrationMR   *miniredis.Miniredis
	integrationErr  error
)

func setupIntegrationApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	integrationOnce.Do(func() {
		os.Setenv("APP_ENV", "test")

		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		if err != nil {
			integrationErr = err
			return
		}
		if err := db.AutoMigrate(&models.User{}, &models.Question{}, &models.Vote{}); err != nil {
			integrationErr = err
			return
		}

		integrationMR, err = miniredis.Run()
		if err != nil {
			integrationErr = err
			return
		}
		rdb := redis.NewClient(&redis.Options{Addr: integrationMR.Addr()})

		cfg := &config.Config{
			Port:                 "0",
			Env:                  "test",
			VerifyCodeTTLMinutes: 10,
			VerifyMaxAttempts:    3,
		}

		srv, err := NewServerWithDeps(cfg, db, rdb, mailer.LogSender{})
		if err != nil {
			integrationErr = err
			return
		}

		app := fiber.New()
		srv.SetupMiddleware(app)
		srv.SetupRoutes(app)
		integrationApp = app
	})
	require.NoError(t, integrationErr)
	return integrationApp, integrationMR
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func envelopeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var env models.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	_ = resp.Body.Close()
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok, "envelope data is not an object")
	return data
}

func TestIntegration_AnonymousSignIn(t *testing.T) {
	app, _ := setupIntegrationApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/qna/auth/anonymous", "",
		map[string]string{"fingerprint": "integration-device-0001"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := envelopeData(t, resp)
	token := data["token"].(string)
	assert.NotEmpty(t, token)

	// Same fingerprint keeps the same identity and token.
	resp = doJSON(t, app, http.MethodPost, "/api/qna/auth/anonymous", "",
		map[string]string{"fingerprint": "integration-device-0001"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := envelopeData(t, resp)
	assert.Equal(t, token, again["token"].(string))

	resp = doJSON(t, app, http.MethodPost, "/api/qna/auth/anonymous", "",
		map[string]string{"fingerprint": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestIntegration_EmailVerificationFlow(t *testing.T) {
	app, mr := setupIntegrationApp(t)
	email := "flow@conf.example"

	resp := doJSON(t, app, http.MethodPost, "/api/qna/auth/email/code", "",
		map[string]string{"email": email})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	code := mr.HGet("verify:code:"+email, "code")
	require.Len(t, code, 4)

	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}
	resp = doJSON(t, app, http.MethodPost, "/api/qna/auth/email/verify", "",
		map[string]string{"email": email, "code": wrong})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var failure struct {
		Kind              string `json:"kind"`
		AttemptsRemaining *int   `json:"attempts_remaining"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failure))
	_ = resp.Body.Close()
	assert.Equal(t, "invalid_code", failure.Kind)
	require.NotNil(t, failure.AttemptsRemaining)
	assert.Equal(t, 2, *failure.AttemptsRemaining)

	resp = doJSON(t, app, http.MethodPost, "/api/qna/auth/email/verify", "",
		map[string]string{"email": email, "code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := envelopeData(t, resp)
	assert.NotEmpty(t, data["token"].(string))

	// The code is consumed; replaying it reports expiry.
	resp = doJSON(t, app, http.MethodPost, "/api/qna/auth/email/verify", "",
		map[string]string{"email": email, "code": code})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failure))
	_ = resp.Body.Close()
	assert.Equal(t, "expired", failure.Kind)
}

func TestIntegration_QuestionLifecycle(t *testing.T) {
	app, _ := setupIntegrationApp(t)

	signIn := func(fingerprint string) string {
		resp := doJSON(t, app, http.MethodPost, "/api/qna/auth/anonymous", "",
			map[string]string{"fingerprint": fingerprint})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return envelopeData(t, resp)["token"].(string)
	}

	authorToken := signIn("lifecycle-author-0001")
	voterToken := signIn("lifecycle-voter-0001")

	// Unauthenticated writes are rejected.
	resp := doJSON(t, app, http.MethodPost, "/api/qna/sessions/demo/questions", "",
		map[string]string{"content": "no token"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/api/qna/sessions/demo/questions", authorToken,
		map[string]string{"content": "Does the demo ever work?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := envelopeData(t, resp)
	questionID := int(created["id"].(float64))
	assert.NotEmpty(t, created["author_name"])

	// Public listing, no token needed.
	resp = doJSON(t, app, http.MethodGet, "/api/qna/sessions/demo/questions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listEnv models.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listEnv))
	_ = resp.Body.Close()
	assert.Len(t, listEnv.Data.([]interface{}), 1)

	// Vote, then retract.
	votePath := "/api/qna/questions/" + strconv.Itoa(questionID) + "/vote"
	resp = doJSON(t, app, http.MethodPost, votePath, voterToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vote := envelopeData(t, resp)
	assert.Equal(t, true, vote["added"])
	assert.EqualValues(t, 1, vote["votes"])

	resp = doJSON(t, app, http.MethodPost, votePath, voterToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vote = envelopeData(t, resp)
	assert.Equal(t, false, vote["added"])
	assert.EqualValues(t, 0, vote["votes"])

	// Non-author delete is a no-op with deleted=false.
	deletePath := "/api/qna/questions/" + strconv.Itoa(questionID)
	resp = doJSON(t, app, http.MethodDelete, deletePath, voterToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, envelopeData(t, resp)["deleted"])

	resp = doJSON(t, app, http.MethodDelete, deletePath, authorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, envelopeData(t, resp)["deleted"])

	resp = doJSON(t, app, http.MethodGet, "/api/qna/sessions/demo/questions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listEnv))
	_ = resp.Body.Close()
	assert.Empty(t, listEnv.Data)
}

func TestIntegration_ProfileAndLeaderboard(t *testing.T) {
	app, _ := setupIntegrationApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/qna/auth/anonymous", "",
		map[string]string{"fingerprint": "profile-device-0001"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := envelopeData(t, resp)["token"].(string)

	resp = doJSON(t, app, http.MethodGet, "/api/qna/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := envelopeData(t, resp)
	assert.NotEmpty(t, me["display_name"])

	resp = doJSON(t, app, http.MethodPut, "/api/qna/users/me/display-name", token,
		map[string]string{"display_name": "Mic Dropper"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mic Dropper", envelopeData(t, resp)["display_name"])

	resp = doJSON(t, app, http.MethodGet, "/api/qna/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env models.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	_ = resp.Body.Close()
	assert.Equal(t, models.EnvelopeVersion, env.V)
}

func TestIntegration_HealthEndpoints(t *testing.T) {
	app, _ := setupIntegrationApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

