package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/cashquest/backend/internal/audit"
	"github.com/cashquest/backend/internal/events"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	viper.Set("rewards.signup_bonus", int64(500))
}

func newTestAuthService(t *testing.T) (*AuthService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := NewLedgerService(db, audit.NewLogger(), events.NewBroker())
	return NewAuthService(db, nil, ledger, nil), mock
}

func TestAuthService_Register(t *testing.T) {
	setAuthTestConfig()
	service, mock := newTestAuthService(t)

	t.Run("successful registration without invite code", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "test@example.com",
			Password:    "password123",
			Name:        "Ravi Kumar",
			PhoneNumber: "+919812345678",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, sqlmock.AnyArg(), req.Name, req.PhoneNumber, sqlmock.AnyArg(), nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(1, 0, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.User.Email)
		assert.Len(t, response.User.RefCode, 6)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("registration with invite code credits referrer", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "invited@example.com",
			Password:    "password123",
			Name:        "Asha Patel",
			PhoneNumber: "+919812345679",
			InviteCode:  "K7KDJF",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM users WHERE ref_code = \\$1").
			WithArgs("K7KDJF").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, sqlmock.AnyArg(), req.Name, req.PhoneNumber, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(2, 0, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		// Referrer signup bonus goes through the ledger.
		mock.ExpectBegin()
		expectAccountLock(mock, 9, 1000, 1000, 0, 1)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2").
			WithArgs(int64(1500), int64(1500), sqlmock.AnyArg(), 9, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), 9, int64(500), "CREDIT", "Referral signup bonus", int64(1500), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		mock.ExpectExec("UPDATE users SET referral_count = referral_count \\+ 1").
			WithArgs(int64(500), 9).
			WillReturnResult(sqlmock.NewResult(1, 1))

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown invite code is rejected", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "loner@example.com",
			Password:    "password123",
			Name:        "No Friends",
			PhoneNumber: "+919812345670",
			InviteCode:  "ZZZZZZ",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM users WHERE ref_code = \\$1").
			WithArgs("ZZZZZZ").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	setAuthTestConfig()
	service, mock := newTestAuthService(t)

	userColumns := []string{"id", "email", "name", "phone_number", "ref_code", "verified", "role", "password"}

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, name, phone_number, ref_code, verified, role, password FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "test@example.com", "Ravi Kumar", "+919812345678", "K7KDJF", true, "user", hashedPassword))

		req := LoginRequest{
			Email:    "test@example.com",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "K7KDJF", response.User.RefCode)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, name, phone_number, ref_code, verified, role, password FROM users").
			WithArgs("nonexistent@example.com").
			WillReturnError(sql.ErrNoRows)

		req := LoginRequest{
			Email:    "nonexistent@example.com",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, name, phone_number, ref_code, verified, role, password FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "test@example.com", "Ravi Kumar", "+919812345678", "K7KDJF", true, "user", hashedPassword))

		req := LoginRequest{
			Email:    "test@example.com",
			Password: "wrong-password",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_UpdateProfile(t *testing.T) {
	setAuthTestConfig()

	t.Run("updates name and phone number", func(t *testing.T) {
		service, mock := newTestAuthService(t)

		mock.ExpectQuery("UPDATE users").
			WithArgs("Ravi K", "+919899999999", 7).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "email", "name", "phone_number", "ref_code", "verified", "role"}).
				AddRow(7, "ravi@example.com", "Ravi K", "+919899999999", "K7KDJF", true, "user"))

		body, _ := json.Marshal(UpdateProfileRequest{Name: "Ravi K", PhoneNumber: "+919899999999"})
		r := requestWithUser(httptest.NewRequest("PUT", "/auth/profile", bytes.NewBuffer(body)), 7)
		w := httptest.NewRecorder()

		service.UpdateProfile(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var user User
		json.Unmarshal(w.Body.Bytes(), &user)
		assert.Equal(t, "Ravi K", user.Name)
		assert.Equal(t, "+919899999999", user.PhoneNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		service, _ := newTestAuthService(t)

		body, _ := json.Marshal(UpdateProfileRequest{Name: "", PhoneNumber: "+919899999999"})
		r := requestWithUser(httptest.NewRequest("PUT", "/auth/profile", bytes.NewBuffer(body)), 7)
		w := httptest.NewRecorder()

		service.UpdateProfile(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_DeleteAccount(t *testing.T) {
	setAuthTestConfig()

	hashed, err := hashPassword("password123")
	assert.NoError(t, err)

	t.Run("deletes the account with the correct password", func(t *testing.T) {
		service, mock := newTestAuthService(t)

		mock.ExpectQuery("SELECT password FROM users").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow(hashed))
		mock.ExpectExec("DELETE FROM users").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(DeleteAccountRequest{Password: "password123"})
		r := requestWithUser(httptest.NewRequest("DELETE", "/auth/profile", bytes.NewBuffer(body)), 7)
		w := httptest.NewRecorder()

		service.DeleteAccount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses a wrong password without deleting", func(t *testing.T) {
		service, mock := newTestAuthService(t)

		mock.ExpectQuery("SELECT password FROM users").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow(hashed))

		body, _ := json.Marshal(DeleteAccountRequest{Password: "wrongpassword"})
		r := requestWithUser(httptest.NewRequest("DELETE", "/auth/profile", bytes.NewBuffer(body)), 7)
		w := httptest.NewRecorder()

		service.DeleteAccount(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	hashed, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword("password123", hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
	assert.False(t, verifyPassword("password123", "not-a-valid-hash"))
}

func TestGenerateJWT(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)

	token, err := generateJWT(123)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestGenerateRefCode(t *testing.T) {
	code := generateRefCode()
	assert.Len(t, code, 6)
	for _, c := range code {
		assert.True(t, (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'), "unexpected character %q", c)
	}
}
