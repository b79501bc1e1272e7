package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cashquest/backend/internal/models"
	"github.com/cashquest/backend/internal/notifier"
)

// AdminService covers the user-management side of the admin API:
// listing users, verification, manual balance adjustments and
// platform-wide stats.
type AdminService struct {
	db        *sql.DB
	ledger    *LedgerService
	telegram  *notifier.Telegram
	validator *validator.Validate
}

// AdjustBalanceRequest represents a manual balance correction
// @Description Balance adjustment request structure
type AdjustBalanceRequest struct {
	Amount int64  `json:"amount" validate:"required" example:"-2500"` // in paise, signed
	Reason string `json:"reason" validate:"required,min=3" example:"Chargeback correction"`
}

func NewAdminService(db *sql.DB, ledger *LedgerService, telegram *notifier.Telegram) *AdminService {
	return &AdminService{
		db:        db,
		ledger:    ledger,
		telegram:  telegram,
		validator: NewValidator(),
	}
}

// ListUsers returns all users with their account balances (admin)
// @Summary List users
// @Description List all users with balances and counters
// @Tags admin
// @Produce json
// @Success 200 {array} object "Users"
// @Router /admin/users [get]
func (s *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT u.id, u.email, u.name, u.verified, u.ref_code, u.referral_count,
		       u.tasks_pending, u.tasks_completed, u.tasks_rejected, u.created_at,
		       a.balance, a.total_earned, a.total_withdrawn
		FROM users u
		JOIN accounts a ON a.user_id = u.id
		ORDER BY u.created_at DESC`)
	if err != nil {
		log.Printf("[ADMIN] Failed to list users: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type adminUser struct {
		ID             int       `json:"id"`
		Email          string    `json:"email"`
		Name           string    `json:"name"`
		Verified       bool      `json:"verified"`
		RefCode        string    `json:"ref_code"`
		ReferralCount  int       `json:"referral_count"`
		TasksPending   int       `json:"tasks_pending"`
		TasksCompleted int       `json:"tasks_completed"`
		TasksRejected  int       `json:"tasks_rejected"`
		CreatedAt      time.Time `json:"created_at"`
		Balance        int64     `json:"balance"`
		TotalEarned    int64     `json:"total_earned"`
		TotalWithdrawn int64     `json:"total_withdrawn"`
	}

	users := []adminUser{}
	for rows.Next() {
		var u adminUser
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Verified, &u.RefCode, &u.ReferralCount,
			&u.TasksPending, &u.TasksCompleted, &u.TasksRejected, &u.CreatedAt,
			&u.Balance, &u.TotalEarned, &u.TotalWithdrawn); err != nil {
			log.Printf("[ADMIN] Failed to scan user: %v", err)
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// SetVerified toggles a user's verified flag (admin)
// @Summary Set user verification
// @Description Mark a user as verified or unverified
// @Tags admin
// @Accept json
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} map[string]bool "Updated"
// @Failure 404 {string} string "User not found"
// @Router /admin/users/{userId}/verify [put]
func (s *AdminService) SetVerified(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec("UPDATE users SET verified = $1 WHERE id = $2", req.Verified, userID)
	if err != nil {
		log.Printf("[ADMIN] Verification update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to update user", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[ADMIN] User %d verified=%t", userID, req.Verified)
	go s.telegram.NotifyAdminAction("verify_user", fmt.Sprintf("user %d verified=%t", userID, req.Verified))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"verified": req.Verified})
}

// AdjustBalance credits or debits a user's balance (admin)
// @Summary Adjust user balance
// @Description Apply a signed manual adjustment through the ledger
// @Tags admin
// @Accept json
// @Produce json
// @Param userId path int true "User ID"
// @Param request body AdjustBalanceRequest true "Adjustment"
// @Success 200 {object} models.LedgerEntry "Ledger entry"
// @Failure 400 {string} string "Invalid request"
// @Failure 404 {string} string "Account not found"
// @Router /admin/users/{userId}/balance [post]
func (s *AdminService) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req AdjustBalanceRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := s.ledger.Apply(userID, req.Amount, "Admin adjustment: "+req.Reason)
	if err != nil {
		switch err {
		case ErrAccountNotFound:
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case ErrZeroAmount:
			SendErrorResponse(w, "Amount must be non-zero", http.StatusBadRequest, nil)
		default:
			log.Printf("[ADMIN] Adjustment failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to adjust balance", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[ADMIN] Balance adjusted for user %d by %d (%s)", userID, req.Amount, req.Reason)
	go s.telegram.NotifyAdminAction("adjust_balance", fmt.Sprintf("user %d by %d: %s", userID, req.Amount, req.Reason))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// DeleteUser removes a user and their data (admin)
// @Summary Delete user
// @Description Delete a user; accounts, entries and submissions cascade
// @Tags admin
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} map[string]string "Deleted"
// @Failure 404 {string} string "User not found"
// @Router /admin/users/{userId} [delete]
func (s *AdminService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec("DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		log.Printf("[ADMIN] Delete failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[ADMIN] User %d deleted", userID)
	go s.telegram.NotifyAdminAction("delete_user", fmt.Sprintf("user %d", userID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "User deleted"})
}

// GetStats returns platform aggregates (admin)
// @Summary Platform stats
// @Description Aggregate user, task, submission and payout counts
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Stats"
// @Router /admin/stats [get]
func (s *AdminService) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats struct {
		Users              int   `json:"users"`
		ActiveTasks        int   `json:"active_tasks"`
		PendingSubmissions int   `json:"pending_submissions"`
		PendingWithdrawals int   `json:"pending_withdrawals"`
		TotalBalance       int64 `json:"total_balance"`
		TotalWithdrawn     int64 `json:"total_withdrawn"`
	}

	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM tasks WHERE status = 'active'),
			(SELECT COUNT(*) FROM task_submissions WHERE status = 'pending'),
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending'),
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COALESCE(SUM(total_withdrawn), 0) FROM accounts)`).Scan(
		&stats.Users, &stats.ActiveTasks, &stats.PendingSubmissions,
		&stats.PendingWithdrawals, &stats.TotalBalance, &stats.TotalWithdrawn)
	if err != nil {
		log.Printf("[ADMIN] Stats query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch stats", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// ListUserEntries returns a user's ledger history (admin)
// @Summary List a user's ledger entries
// @Description List ledger entries for any user, newest first
// @Tags admin
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {array} models.LedgerEntry "Ledger entries"
// @Router /admin/users/{userId}/entries [get]
func (s *AdminService) ListUserEntries(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, entry_id, user_id, amount, entry_type, reason, balance, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		log.Printf("[ADMIN] Failed to list entries for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.EntryID, &entry.UserID, &entry.Amount,
			&entry.EntryType, &entry.Reason, &entry.Balance, &entry.CreatedAt); err != nil {
			log.Printf("[ADMIN] Failed to scan entry: %v", err)
			SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
