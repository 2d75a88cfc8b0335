package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signTestToken(t *testing.T, userID, email string) string {
	viper.Set("jwt.secret_key", "test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	assert.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	InitAuthMiddleware(nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value("userID").(string)
		w.Write([]byte(userID))
	})

	t.Run("valid token passes identity through", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/members/me", nil)
		r.Header.Set("Authorization", "Bearer "+signTestToken(t, "user-1", "somchai@example.com"))
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/members/me", nil)
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/members/me", nil)
		r.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/members/me", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()

		AuthMiddleware(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	withIdentity := func(r *http.Request, userID, email string) *http.Request {
		ctx := context.WithValue(r.Context(), "userID", userID)
		ctx = context.WithValue(ctx, "userEmail", email)
		return r.WithContext(ctx)
	}

	t.Run("email containing admin passes without a role lookup", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		r := httptest.NewRequest("GET", "/admin/stats", nil)
		r = withIdentity(r, "user-1", "Fund.Admin@example.com")
		w := httptest.NewRecorder()

		AdminOnly(db)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin role passes", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT role FROM members").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

		r := httptest.NewRequest("GET", "/admin/stats", nil)
		r = withIdentity(r, "user-1", "somchai@example.com")
		w := httptest.NewRecorder()

		AdminOnly(db)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("plain member is forbidden", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT role FROM members").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("member"))

		r := httptest.NewRequest("GET", "/admin/stats", nil)
		r = withIdentity(r, "user-1", "somchai@example.com")
		w := httptest.NewRecorder()

		AdminOnly(db)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing identity is unauthorized", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		r := httptest.NewRequest("GET", "/admin/stats", nil)
		w := httptest.NewRecorder()

		AdminOnly(db)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
