package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 1)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	t.Run("roundtrip verifies", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.True(t, verifyPassword("password123", hashed))
	})

	t.Run("wrong password fails", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.False(t, verifyPassword("password124", hashed))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		first, err := hashPassword("password123")
		assert.NoError(t, err)
		second, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash fails closed", func(t *testing.T) {
		assert.False(t, verifyPassword("password123", "not-a-hash"))
	})
}

func TestGenerateMemberCode(t *testing.T) {
	pattern := regexp.MustCompile(`^MB\d{4}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, pattern, generateMemberCode())
	}
}

func TestAuthService_Register(t *testing.T) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, _ := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("creates member with zero balance", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO members").
			WillReturnRows(sqlmock.NewRows([]string{"registered_at"}).AddRow(time.Now()))

		body, _ := json.Marshal(RegisterRequest{
			FullName: "Somchai Jaidee",
			IDCard:   "1103700123456",
			Phone:    "+66812345678",
			Address:  "12 Moo 4",
			Email:    "Somchai@Example.com",
			Password: "password123",
		})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, int64(0), resp.Member.Balance)
		assert.Equal(t, "member", resp.Member.Role)
		// Emails are normalized to lower case on the way in.
		assert.Equal(t, "somchai@example.com", resp.Member.Email)
	})

	t.Run("duplicate email maps to 409", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO members").
			WillReturnError(assert.AnError)

		body, _ := json.Marshal(RegisterRequest{
			FullName: "Somchai Jaidee",
			IDCard:   "1103700123456",
			Phone:    "+66812345678",
			Email:    "somchai@example.com",
			Password: "password123",
		})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("short password fails validation", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{
			FullName: "Somchai Jaidee",
			IDCard:   "1103700123456",
			Phone:    "+66812345678",
			Email:    "somchai@example.com",
			Password: "short",
		})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, _ := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("valid credentials return a token", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, member_code, full_name, phone, address, email, password").
			WithArgs("somchai@example.com").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "member_code", "full_name", "phone", "address", "email", "password", "balance", "role", "registered_at"}).
				AddRow(testMemberID, "MB1234", "Somchai Jaidee", "+66812345678", "", "somchai@example.com", hashed, 1500, "member", time.Now()))

		body, _ := json.Marshal(LoginRequest{Email: "somchai@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, int64(1500), resp.Member.Balance)
	})

	t.Run("wrong password maps to 401", func(t *testing.T) {
		hashed, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, member_code, full_name, phone, address, email, password").
			WithArgs("somchai@example.com").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "member_code", "full_name", "phone", "address", "email", "password", "balance", "role", "registered_at"}).
				AddRow(testMemberID, "MB1234", "Somchai Jaidee", "+66812345678", "", "somchai@example.com", hashed, 1500, "member", time.Now()))

		body, _ := json.Marshal(LoginRequest{Email: "somchai@example.com", Password: "wrongpass"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email maps to 401", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, member_code, full_name, phone, address, email, password").
			WithArgs("nobody@example.com").
			WillReturnError(assert.AnError)

		body, _ := json.Marshal(LoginRequest{Email: "nobody@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	setAuthTestConfig()

	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("blacklists the presented token", func(t *testing.T) {
		redisMock.ExpectSet("blacklist:some-token", "1", time.Hour).SetVal("OK")

		r := httptest.NewRequest("POST", "/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/logout", nil)
		w := httptest.NewRecorder()

		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
