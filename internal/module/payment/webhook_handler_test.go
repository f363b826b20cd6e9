package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var timeZero = time.Time{}

func sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(repo *MockRepository, secret string) *gin.Engine {
		r := gin.New()
		rec := NewReconciler(repo, newMockPublisher(nil), nil, nil)
		NewWebhookHandler(rec, secret, nil).RegisterRoutes(r.Group("/v1"))
		return r
	}

	post := func(r *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("always ok", func(t *testing.T) {
		repo := NewMockRepository()
		r := newRouter(repo, "")

		for _, body := range []string{`{"status":"approved"}`, `garbage`, ``} {
			w := post(r, "/v1/webhooks/mercadopago", body, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"ok":true}`, w.Body.String())
		}
	})

	t.Run("signed webhook", func(t *testing.T) {
		repo := NewMockRepository()
		seedPayment(t, repo, "p1")
		r := newRouter(repo, "s3cret")
		body := `{"external_reference":"p1","status":"approved"}`

		w := post(r, "/v1/webhooks/mercadopago?data.id=p1", body, map[string]string{
			"X-Signature":  "ts=1700000000,v1=deadbeef",
			"X-Request-ID": "req-1",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.StatusPending, repo.status("p1"))
		require.Len(t, repo.events, 1)
		assert.Equal(t, ResultInvalidSignature, repo.events[0].Result)
		assert.Equal(t, ErrInvalidSignature.Error(), repo.events[0].Error)

		sig := sign("s3cret", "id:p1;request-id:req-1;ts:1700000000;")
		w = post(r, "/v1/webhooks/mercadopago?data.id=p1", body, map[string]string{
			"X-Signature":  "ts=1700000000,v1=" + sig,
			"X-Request-ID": "req-1",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.StatusPaid, repo.status("p1"))
	})
}

func TestVerifySignature(t *testing.T) {
	sig := sign("key", "id:abc;ts:42;")

	assert.NoError(t, VerifySignature("key", "ts=42,v1="+sig, "", "ABC"))
	assert.NoError(t, VerifySignature("key", " v1="+sig+" , ts=42", "", "abc"))
	assert.ErrorIs(t, VerifySignature("key", "ts=42", "", "abc"), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature("key", "ts=43,v1="+sig, "", "abc"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("key", "ts=42,v1=zz", "", "abc"), ErrInvalidSignature)
}
