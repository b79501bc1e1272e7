package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/cashquest/backend/internal/notifier"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	telegram  *notifier.Telegram
	validator *validator.Validate
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" example:"user@example.com"`
	Password    string `json:"password" validate:"required,min=6" example:"password123"`
	Name        string `json:"name" validate:"required,min=2" example:"Ravi Kumar"`
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+919812345678"`
	InviteCode  string `json:"inviteCode" validate:"omitempty,alphanum,len=6" example:"K7KDJF"` // referrer's code
}

// UpdateProfileRequest represents the profile update payload
// @Description Profile update request structure
type UpdateProfileRequest struct {
	Name        string `json:"name" validate:"required,min=2" example:"Ravi Kumar"`
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+919812345678"`
}

// DeleteAccountRequest represents the account deletion payload
// @Description Account deletion request structure
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required" example:"password123"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  User   `json:"user"`                                                    // User information
}

// User represents user information returned by the auth endpoints
// @Description User structure
type User struct {
	ID          int    `json:"id" example:"1"`                   // User ID
	Email       string `json:"email" example:"user@example.com"` // User email
	Name        string `json:"name" example:"Ravi Kumar"`        // Display name
	PhoneNumber string `json:"phoneNumber" example:"+919812345678"`
	RefCode     string `json:"refCode" example:"K7KDJF"` // Referral code to share
	Verified    bool   `json:"verified"`
	Role        string `json:"role" example:"user"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, telegram *notifier.Telegram) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		telegram:  telegram,
		validator: NewValidator(),
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user with email, password and name, optionally crediting a referrer
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "Email already exists"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	refCode := generateRefCode()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Resolve the invite code before creating the user so a bad code
	// fails the whole registration.
	var referrerID *int
	if req.InviteCode != "" {
		var id int
		err := tx.QueryRow("SELECT id FROM users WHERE ref_code = $1",
			strings.ToUpper(req.InviteCode)).Scan(&id)
		if err == sql.ErrNoRows {
			log.Printf("[AUTH] Unknown invite code %q for %s", req.InviteCode, req.Email)
			s.sendErrorResponse(w, "Invalid invite code", http.StatusBadRequest, nil)
			return
		}
		if err != nil {
			log.Printf("[AUTH] Invite code lookup failed for %s: %v", req.Email, err)
			s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
			return
		}
		referrerID = &id
	}

	var userID int
	err = tx.QueryRow("INSERT INTO users (email, password, name, phone_number, ref_code, referrer_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		strings.ToLower(req.Email), hashedPassword, req.Name, req.PhoneNumber, refCode, referrerID).Scan(&userID)
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	_, err = tx.Exec("INSERT INTO accounts (user_id, balance, version, updated_at) VALUES ($1, $2, $3, NOW())",
		userID, 0, 1)
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", userID, req.Email)

	if referrerID != nil {
		s.creditSignupBonus(*referrerID, req.Email)
	}

	go s.telegram.NotifyNewUser(req.Name, req.Email, refCode, strings.ToUpper(req.InviteCode))

	token, err := generateJWT(userID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User:  User{ID: userID, Email: strings.ToLower(req.Email), Name: req.Name, PhoneNumber: req.PhoneNumber, RefCode: refCode, Role: "user"},
	}

	log.Printf("[AUTH] Registration successful for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// creditSignupBonus pays the referrer their signup reward. Failures
// are logged, never surfaced to the registering user.
func (s *AuthService) creditSignupBonus(referrerID int, newUserEmail string) {
	bonus := viper.GetInt64("rewards.signup_bonus")
	if bonus <= 0 {
		return
	}

	if _, err := s.ledger.Apply(referrerID, bonus, "Referral signup bonus"); err != nil {
		log.Printf("[AUTH] Signup bonus credit failed for referrer %d: %v", referrerID, err)
		return
	}

	_, err := s.db.Exec("UPDATE users SET referral_count = referral_count + 1, referral_earnings = referral_earnings + $1 WHERE id = $2",
		bonus, referrerID)
	if err != nil {
		log.Printf("[AUTH] Referral counter update failed for referrer %d: %v", referrerID, err)
		return
	}

	log.Printf("[AUTH] Signup bonus credited to referrer %d for %s", referrerID, newUserEmail)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Login request for email: %s", req.Email)

	var user User
	var hashedPassword string
	err := s.db.QueryRow("SELECT id, email, name, phone_number, ref_code, verified, role, password FROM users WHERE email = $1",
		strings.ToLower(req.Email)).Scan(&user.ID, &user.Email, &user.Name, &user.PhoneNumber,
		&user.RefCode, &user.Verified, &user.Role, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Email)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	log.Printf("[AUTH] Password verified for user ID: %d", user.ID)

	token, err := generateJWT(user.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User:  user,
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetProfile retrieves the authenticated user's profile
// @Summary Get user profile
// @Description Get the authenticated user's profile including referral and task counters
// @Tags auth
// @Produce json
// @Success 200 {object} models.User "User profile"
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/profile [get]
func (s *AuthService) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		log.Printf("[AUTH] Unauthorized profile request - no user ID in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	log.Printf("[AUTH] Fetching profile for user ID: %d", userID)

	var user User
	var tasksPending, tasksCompleted, tasksRejected, referralCount int
	var referralEarnings int64
	err := s.db.QueryRow(`
		SELECT id, email, name, phone_number, ref_code, verified, role,
		       referral_count, referral_earnings, tasks_pending, tasks_completed, tasks_rejected
		FROM users WHERE id = $1`, userID).Scan(
		&user.ID, &user.Email, &user.Name, &user.PhoneNumber, &user.RefCode,
		&user.Verified, &user.Role, &referralCount, &referralEarnings,
		&tasksPending, &tasksCompleted, &tasksRejected)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("[AUTH] User not found for ID: %d", userID)
			http.Error(w, "User not found", http.StatusNotFound)
		} else {
			log.Printf("[AUTH] Failed to fetch profile for ID %d: %v", userID, err)
			http.Error(w, "Failed to fetch user details", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user": user,
		"referrals": map[string]any{
			"count":    referralCount,
			"earnings": referralEarnings,
		},
		"taskHistory": map[string]int{
			"pending":   tasksPending,
			"completed": tasksCompleted,
			"rejected":  tasksRejected,
		},
	})
}

// UpdateProfile updates the authenticated user's personal info
// @Summary Update profile
// @Description Update the authenticated user's name and phone number
// @Tags auth
// @Accept json
// @Produce json
// @Param request body UpdateProfileRequest true "Profile update"
// @Success 200 {object} User "Updated profile"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Unauthorized"
// @Router /auth/profile [put]
func (s *AuthService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req UpdateProfileRequest
	if err := dec.Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Profile update validation failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user User
	err := s.db.QueryRow(`
		UPDATE users
		SET name = $1, phone_number = $2
		WHERE id = $3
		RETURNING id, email, name, phone_number, ref_code, verified, role`,
		req.Name, req.PhoneNumber, userID).Scan(
		&user.ID, &user.Email, &user.Name, &user.PhoneNumber,
		&user.RefCode, &user.Verified, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			s.sendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Profile update failed for user %d: %v", userID, err)
			s.sendErrorResponse(w, "Failed to update profile", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[AUTH] Profile updated for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// DeleteAccount removes the authenticated user's own account
// @Summary Delete own account
// @Description Delete the authenticated user's account after re-entering the password; balances and history cascade
// @Tags auth
// @Accept json
// @Produce json
// @Param request body DeleteAccountRequest true "Password confirmation"
// @Success 200 {object} map[string]string "Account deleted"
// @Failure 401 {string} string "Invalid password"
// @Router /auth/profile [delete]
func (s *AuthService) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req DeleteAccountRequest
	if err := dec.Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Deleting an account is irreversible, so the password is checked
	// again even though the request is already authenticated.
	var hashedPassword string
	err := s.db.QueryRow("SELECT password FROM users WHERE id = $1", userID).Scan(&hashedPassword)
	if err != nil {
		if err == sql.ErrNoRows {
			s.sendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Account lookup failed for user %d: %v", userID, err)
			s.sendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		}
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Account deletion refused for user %d - wrong password", userID)
		s.sendErrorResponse(w, "Invalid password", http.StatusUnauthorized, nil)
		return
	}

	if _, err := s.db.Exec("DELETE FROM users WHERE id = $1", userID); err != nil {
		log.Printf("[AUTH] Account deletion failed for user %d: %v", userID, err)
		s.sendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}

	// The account is gone, so revoke the token that authenticated this
	// request.
	if authHeader := r.Header.Get("Authorization"); len(authHeader) > 7 && s.redis != nil {
		token := authHeader[7:]
		key := fmt.Sprintf("blacklist:%s", token)
		expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		if err := s.redis.Set(r.Context(), key, "1", expiry).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token after deletion: %v", err)
		}
	}

	log.Printf("[AUTH] User %d deleted their account", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Account deleted"})
}

func generateJWT(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"nameid":  userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

// generateRefCode returns a 6-character shareable referral code.
func generateRefCode() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
