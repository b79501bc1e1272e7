package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/cashquest/backend/internal/events"
	"github.com/cashquest/backend/internal/models"
	"github.com/cashquest/backend/internal/notifier"
)

// WithdrawalService handles payout requests. The requested amount is
// debited immediately under a row lock so two concurrent requests
// cannot both pass the balance check; a rejection credits it back.
type WithdrawalService struct {
	db        *sql.DB
	ledger    *LedgerService
	broker    *events.Broker
	telegram  *notifier.Telegram
	validator *validator.Validate
}

// WithdrawalRequest represents the payout request payload
// @Description Withdrawal request structure
type WithdrawalRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0" example:"5000"` // in paise
	Method        string `json:"method" validate:"required,oneof=upi bank" example:"upi"`
	UPIAddress    string `json:"upiAddress" validate:"required_if=Method upi,omitempty,upi" example:"ravi@okaxis"`
	AccountNumber string `json:"accountNumber" validate:"required_if=Method bank,omitempty,numeric,min=9"`
	IFSC          string `json:"ifsc" validate:"required_if=Method bank,omitempty,ifsc" example:"HDFC0001234"`
	HolderName    string `json:"holderName" validate:"required_if=Method bank,omitempty,min=2"`
}

// ProcessRequest represents the admin payout decision payload
// @Description Withdrawal processing request structure
type ProcessRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject" example:"approve"`
	Note   string `json:"note" validate:"omitempty,max=500" example:"Paid via UPI"`
}

func NewWithdrawalService(db *sql.DB, ledger *LedgerService, broker *events.Broker, telegram *notifier.Telegram) *WithdrawalService {
	return &WithdrawalService{
		db:        db,
		ledger:    ledger,
		broker:    broker,
		telegram:  telegram,
		validator: NewValidator(),
	}
}

// RequestWithdrawal debits the balance and queues a payout
// @Summary Request withdrawal
// @Description Request a payout; the amount is debited immediately and held until an admin processes it
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param request body WithdrawalRequest true "Withdrawal request"
// @Success 200 {object} models.Withdrawal "Withdrawal created"
// @Failure 400 {string} string "Invalid request or insufficient balance"
// @Failure 401 {string} string "Unauthorized"
// @Router /withdrawals [post]
func (s *WithdrawalService) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req WithdrawalRequest
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

	minAmount := viper.GetInt64("rewards.min_withdrawal")
	if req.Amount < minAmount {
		SendErrorResponse(w, "Amount below minimum withdrawal", http.StatusBadRequest, nil)
		return
	}

	details := models.PayoutDetails{}
	if req.Method == models.MethodUPI {
		details["upi_id"] = req.UPIAddress
	} else {
		details["account_number"] = req.AccountNumber
		details["ifsc"] = req.IFSC
		details["holder_name"] = req.HolderName
	}

	withdrawal := models.Withdrawal{
		WithdrawalID: uuid.NewString(),
		UserID:       userID,
		Amount:       req.Amount,
		Method:       req.Method,
		Details:      details,
		Status:       models.WithdrawalPending,
		CreatedAt:    time.Now(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[WITHDRAW] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to create withdrawal", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Lock the account first so the sufficiency check and the debit
	// see the same balance.
	account, err := s.ledger.lockAccount(tx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[WITHDRAW] Account lock failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to create withdrawal", http.StatusInternalServerError, nil)
		}
		return
	}

	if account.Balance < req.Amount {
		log.Printf("[WITHDRAW] Insufficient balance for user %d: have %d, want %d",
			userID, account.Balance, req.Amount)
		SendErrorResponse(w, "Insufficient balance", http.StatusBadRequest, nil)
		return
	}

	entry, err := s.ledger.ApplyTx(tx, userID, -req.Amount, "Withdrawal request")
	if err != nil {
		log.Printf("[WITHDRAW] Debit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create withdrawal", http.StatusInternalServerError, nil)
		return
	}

	err = tx.QueryRow(`
		INSERT INTO withdrawals (withdrawal_id, user_id, amount, method, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		withdrawal.WithdrawalID, userID, withdrawal.Amount, withdrawal.Method,
		withdrawal.Details, withdrawal.Status, withdrawal.CreatedAt).Scan(&withdrawal.ID)
	if err != nil {
		log.Printf("[WITHDRAW] Insert failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create withdrawal", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[WITHDRAW] Commit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create withdrawal", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[WITHDRAW] User %d requested %d via %s (%s)",
		userID, withdrawal.Amount, withdrawal.Method, withdrawal.WithdrawalID)

	s.ledger.PublishEntry(entry)
	s.broker.Publish(events.Event{
		Type:    events.TypeWithdrawalUpdated,
		UserID:  userID,
		Payload: withdrawal,
	})

	go s.notifyRequest(userID, withdrawal.Amount, withdrawal.Method)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withdrawal)
}

func (s *WithdrawalService) notifyRequest(userID int, amount int64, method string) {
	var name, email string
	if err := s.db.QueryRow("SELECT name, email FROM users WHERE id = $1", userID).Scan(&name, &email); err != nil {
		log.Printf("[WITHDRAW] Notification lookup failed for user %d: %v", userID, err)
		return
	}
	s.telegram.NotifyWithdrawalRequest(name, email, amount, method)
}

// ListMyWithdrawals returns the caller's payout history
// @Summary List my withdrawals
// @Description List the authenticated user's withdrawal requests, newest first
// @Tags withdrawals
// @Produce json
// @Success 200 {array} models.Withdrawal "Withdrawals"
// @Failure 401 {string} string "Unauthorized"
// @Router /withdrawals [get]
func (s *WithdrawalService) ListMyWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	s.listWithdrawals(w, `
		SELECT id, withdrawal_id, user_id, amount, method, details, status, COALESCE(admin_note, ''), created_at, processed_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
}

// ListPendingWithdrawals returns payouts awaiting processing (admin)
// @Summary List pending withdrawals
// @Description List all pending withdrawal requests
// @Tags admin
// @Produce json
// @Success 200 {array} models.Withdrawal "Pending withdrawals"
// @Router /admin/withdrawals [get]
func (s *WithdrawalService) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	s.listWithdrawals(w, `
		SELECT id, withdrawal_id, user_id, amount, method, details, status, COALESCE(admin_note, ''), created_at, processed_at
		FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC`, models.WithdrawalPending)
}

func (s *WithdrawalService) listWithdrawals(w http.ResponseWriter, query string, arg any) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		log.Printf("[WITHDRAW] Failed to list withdrawals: %v", err)
		SendErrorResponse(w, "Failed to fetch withdrawals", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	withdrawals := []models.Withdrawal{}
	for rows.Next() {
		var wd models.Withdrawal
		if err := rows.Scan(&wd.ID, &wd.WithdrawalID, &wd.UserID, &wd.Amount, &wd.Method,
			&wd.Details, &wd.Status, &wd.AdminNote, &wd.CreatedAt, &wd.ProcessedAt); err != nil {
			log.Printf("[WITHDRAW] Failed to scan withdrawal: %v", err)
			SendErrorResponse(w, "Failed to fetch withdrawals", http.StatusInternalServerError, nil)
			return
		}
		withdrawals = append(withdrawals, wd)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withdrawals)
}

// ProcessWithdrawal approves or rejects a pending payout (admin)
// @Summary Process withdrawal
// @Description Approve a pending withdrawal (marks it paid) or reject it (credits the amount back)
// @Tags admin
// @Accept json
// @Produce json
// @Param withdrawalId path string true "Withdrawal ID"
// @Param request body ProcessRequest true "Processing decision"
// @Success 200 {object} map[string]string "Processed"
// @Failure 404 {string} string "Withdrawal not found or already processed"
// @Router /admin/withdrawals/{withdrawalId}/process [put]
func (s *WithdrawalService) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID := chi.URLParam(r, "withdrawalId")

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[WITHDRAW] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	newStatus := models.WithdrawalApproved
	if req.Action == "reject" {
		newStatus = models.WithdrawalRejected
	}

	var userID int
	var amount int64
	err = tx.QueryRow(`
		UPDATE withdrawals
		SET status = $2, admin_note = $3, processed_at = NOW()
		WHERE withdrawal_id = $1 AND status = 'pending'
		RETURNING user_id, amount`, withdrawalID, newStatus, req.Note).Scan(&userID, &amount)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Withdrawal not found or already processed", http.StatusNotFound, nil)
		} else {
			log.Printf("[WITHDRAW] Processing update failed for %s: %v", withdrawalID, err)
			SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
		}
		return
	}

	var refund *models.LedgerEntry
	if newStatus == models.WithdrawalApproved {
		// The balance was already debited at request time; approval
		// just records the paid-out total.
		_, err = tx.Exec("UPDATE accounts SET total_withdrawn = total_withdrawn + $1, updated_at = NOW() WHERE user_id = $2",
			amount, userID)
		if err != nil {
			log.Printf("[WITHDRAW] Withdrawn total update failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
			return
		}
	} else {
		refund, err = s.ledger.ReverseTx(tx, userID, amount, "Withdrawal rejected - amount refunded")
		if err != nil {
			log.Printf("[WITHDRAW] Refund failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[WITHDRAW] Processing commit failed for %s: %v", withdrawalID, err)
		SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[WITHDRAW] Withdrawal %s %s for user %d", withdrawalID, newStatus, userID)

	if refund != nil {
		s.ledger.PublishEntry(refund)
	}
	s.broker.Publish(events.Event{
		Type:   events.TypeWithdrawalUpdated,
		UserID: userID,
		Payload: map[string]any{
			"withdrawal_id": withdrawalID,
			"status":        newStatus,
			"note":          req.Note,
		},
	})

	go s.telegram.NotifyAdminAction(req.Action+"_withdrawal", withdrawalID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": newStatus})
}
