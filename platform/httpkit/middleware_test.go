package httpkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return "test-secret" }

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthRequired(testJWTConfig{}), func(c *gin.Context) {
		companyID, ok := MustGetCompanyID(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"companyId": companyID, "userId": GetIdentity(c).UserID()})
	})
	r.GET("/dispatch", AuthRequired(testJWTConfig{}), RequireRole("dispatcher"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequiredReadsCompanyClaim(t *testing.T) {
	r := newAuthEngine()
	userID, companyID := uuid.New(), uuid.New()
	token := signToken(t, jwt.MapClaims{
		"sub": userID.String(), "type": "access", "company_id": companyID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := get(r, "/me", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), companyID.String())
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestAuthRequiredRejectsBadTokens(t *testing.T) {
	r := newAuthEngine()
	sub := uuid.NewString()

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"refresh token", signToken(t, jwt.MapClaims{"sub": sub, "type": "refresh"}), http.StatusUnauthorized},
		{"expired", signToken(t, jwt.MapClaims{"sub": sub, "type": "access", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"malformed company", signToken(t, jwt.MapClaims{"sub": sub, "type": "access", "company_id": "acme"}), http.StatusUnauthorized},
		{"no company", signToken(t, jwt.MapClaims{"sub": sub, "type": "access"}), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, get(r, "/me", tc.token).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newAuthEngine()
	base := jwt.MapClaims{"sub": uuid.NewString(), "type": "access", "company_id": uuid.NewString()}

	assert.Equal(t, http.StatusForbidden, get(r, "/dispatch", signToken(t, base)).Code)

	base["roles"] = []string{"technician", "dispatcher"}
	assert.Equal(t, http.StatusNoContent, get(r, "/dispatch", signToken(t, base)).Code)
}

func TestAuthFailuresUseErrorResponse(t *testing.T) {
	r := newAuthEngine()
	sub := uuid.NewString()

	cases := []struct {
		name    string
		path    string
		token   string
		status  int
		message string
	}{
		{"missing token", "/me", "", http.StatusUnauthorized, errMissingToken},
		{"no company", "/me", signToken(t, jwt.MapClaims{"sub": sub, "type": "access"}), http.StatusForbidden, MsgNoCompany},
		{"no role", "/dispatch", signToken(t, jwt.MapClaims{"sub": sub, "type": "access", "company_id": uuid.NewString()}), http.StatusForbidden, "forbidden"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(r, tc.path, tc.token)
			require.Equal(t, tc.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.message, body.Error)
		})
	}
}
