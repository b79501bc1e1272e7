package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cashquest/backend/internal/audit"
	"github.com/cashquest/backend/internal/events"
	"github.com/cashquest/backend/internal/models"
)

var (
	ErrZeroAmount      = errors.New("amount must be non-zero")
	ErrAccountNotFound = errors.New("account not found")
)

// LedgerService is the single gateway for balance mutations. Every
// credit and debit goes through Apply or ApplyTx, which update the
// account and append a ledger entry in the same transaction.
type LedgerService struct {
	db     *sql.DB
	audit  *audit.Logger
	broker *events.Broker
}

func NewLedgerService(db *sql.DB, auditLogger *audit.Logger, broker *events.Broker) *LedgerService {
	return &LedgerService{
		db:     db,
		audit:  auditLogger,
		broker: broker,
	}
}

// Apply credits (positive amount) or debits (negative amount) the
// user's account in its own transaction. Direct debits may drive the
// balance negative; callers that need a sufficiency check must lock
// and check before applying.
func (s *LedgerService) Apply(userID int, amount int64, reason string) (*models.LedgerEntry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.ApplyTx(tx, userID, amount, reason)
	if err != nil {
		s.audit.LogError("ledger_apply", userID, err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError("ledger_apply", userID, err)
		return nil, err
	}

	s.PublishEntry(entry)
	return entry, nil
}

// ApplyTx performs the mutation inside the caller's transaction so it
// can be combined with other writes (task approval, withdrawal
// request). The caller commits and is responsible for calling
// PublishEntry afterwards.
func (s *LedgerService) ApplyTx(tx *sql.Tx, userID int, amount int64, reason string) (*models.LedgerEntry, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	account, err := s.lockAccount(tx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	newBalance := account.Balance + amount
	newEarned := account.TotalEarned
	entryType := models.EntryDebit
	entryAmount := -amount
	if amount > 0 {
		entryType = models.EntryCredit
		entryAmount = amount
		newEarned += amount
	}

	if err := s.updateAccountBalance(tx, userID, newBalance, newEarned, account.Version); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		EntryID:   uuid.NewString(),
		UserID:    userID,
		Amount:    entryAmount,
		EntryType: entryType,
		Reason:    reason,
		Balance:   newBalance,
		CreatedAt: time.Now(),
	}

	if err := s.createLedgerEntry(tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// ReverseTx credits back a previously debited amount without counting
// it as earnings. Used when a withdrawal is rejected.
func (s *LedgerService) ReverseTx(tx *sql.Tx, userID int, amount int64, reason string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrZeroAmount
	}

	account, err := s.lockAccount(tx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	newBalance := account.Balance + amount
	if err := s.updateAccountBalance(tx, userID, newBalance, account.TotalEarned, account.Version); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		EntryID:   uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		EntryType: models.EntryCredit,
		Reason:    reason,
		Balance:   newBalance,
		CreatedAt: time.Now(),
	}

	if err := s.createLedgerEntry(tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// PublishEntry audits the committed entry and pushes it to stream
// subscribers. Callers of ApplyTx invoke this after their commit.
func (s *LedgerService) PublishEntry(entry *models.LedgerEntry) {
	s.audit.LogEntry(entry)
	if s.broker != nil {
		s.broker.Publish(events.Event{
			Type:    events.TypeLedgerEntry,
			UserID:  entry.UserID,
			Payload: entry,
		})
	}
}

func (s *LedgerService) lockAccount(tx *sql.Tx, userID int) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT user_id, balance, total_earned, total_withdrawn, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(
		&account.UserID, &account.Balance, &account.TotalEarned,
		&account.TotalWithdrawn, &account.Version, &account.UpdatedAt)

	return &account, err
}

func (s *LedgerService) createLedgerEntry(tx *sql.Tx, entry *models.LedgerEntry) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (entry_id, user_id, amount, entry_type, reason, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.EntryID, entry.UserID, entry.Amount, entry.EntryType,
		entry.Reason, entry.Balance, entry.CreatedAt)
	return err
}

func (s *LedgerService) updateAccountBalance(tx *sql.Tx, userID int, newBalance, newEarned int64, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, total_earned = $2, version = version + 1, updated_at = $3
		WHERE user_id = $4 AND version = $5`,
		newBalance, newEarned, time.Now(), userID, version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %d", userID)
	}

	return nil
}

// GetWallet returns the authenticated user's financial summary
// @Summary Get wallet
// @Description Get balance, total earned and total withdrawn for the authenticated user
// @Tags wallet
// @Produce json
// @Success 200 {object} models.Account "Wallet summary"
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "Account not found"
// @Router /wallet [get]
func (s *LedgerService) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var account models.Account
	err := s.db.QueryRow(`
		SELECT user_id, balance, total_earned, total_withdrawn, version, updated_at
		FROM accounts WHERE user_id = $1`, userID).Scan(
		&account.UserID, &account.Balance, &account.TotalEarned,
		&account.TotalWithdrawn, &account.Version, &account.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[WALLET] Failed to fetch account for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch wallet", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// ListEntries returns the authenticated user's ledger history
// @Summary List ledger entries
// @Description List the authenticated user's ledger entries, newest first
// @Tags wallet
// @Produce json
// @Param limit query int false "Maximum entries to return (default 50, max 200)"
// @Success 200 {array} models.LedgerEntry "Ledger entries"
// @Failure 401 {string} string "Unauthorized"
// @Router /wallet/entries [get]
func (s *LedgerService) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	rows, err := s.db.Query(`
		SELECT id, entry_id, user_id, amount, entry_type, reason, balance, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		log.Printf("[LEDGER] Failed to list entries for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.EntryID, &entry.UserID, &entry.Amount,
			&entry.EntryType, &entry.Reason, &entry.Balance, &entry.CreatedAt); err != nil {
			log.Printf("[LEDGER] Failed to scan entry: %v", err)
			SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
