package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/cashquest/backend/internal/audit"
	"github.com/cashquest/backend/internal/notifier"
)

// BonusService distributes a flat bonus to every user account. Runs
// are idempotent: each (run, account) payment is recorded, and a
// re-run with the same run id skips accounts that were already paid.
type BonusService struct {
	db        *sql.DB
	ledger    *LedgerService
	audit     *audit.Logger
	telegram  *notifier.Telegram
	validator *validator.Validate
}

// DistributeRequest represents the bulk bonus payload
// @Description Bulk bonus distribution request structure
type DistributeRequest struct {
	RunID  string `json:"runId" validate:"required,uuid4" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Amount int64  `json:"amount" validate:"required,gt=0" example:"1000"` // in paise
	Reason string `json:"reason" validate:"required,min=3" example:"Festival bonus"`
}

// DistributeResult summarises a distribution run.
type DistributeResult struct {
	RunID   string `json:"run_id"`
	Paid    int    `json:"paid"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

func NewBonusService(db *sql.DB, ledger *LedgerService, auditLogger *audit.Logger, telegram *notifier.Telegram) *BonusService {
	return &BonusService{
		db:        db,
		ledger:    ledger,
		audit:     auditLogger,
		telegram:  telegram,
		validator: NewValidator(),
	}
}

// Distribute pays amount to every user account under the given run id.
// Each account is processed in its own transaction so one failure
// cannot roll back payments already made; a re-run picks up where the
// failed run stopped.
func (s *BonusService) Distribute(runID string, amount int64, reason string) (*DistributeResult, error) {
	_, err := s.db.Exec(`
		INSERT INTO distribution_runs (run_id, amount, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING`, runID, amount, reason)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT id FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}

	userIDs := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	rows.Close()

	result := &DistributeResult{RunID: runID}
	for _, userID := range userIDs {
		paid, err := s.payOne(runID, userID, amount, reason)
		if err != nil {
			log.Printf("[BONUS] Payment failed for user %d in run %s: %v", userID, runID, err)
			s.audit.LogError("bonus_distribution", userID, err)
			result.Failed++
			continue
		}
		if paid {
			result.Paid++
		} else {
			result.Skipped++
		}
	}

	s.audit.LogDistribution(runID, amount, result.Paid, result.Skipped)
	log.Printf("[BONUS] Run %s complete: %d paid, %d skipped, %d failed",
		runID, result.Paid, result.Skipped, result.Failed)
	return result, nil
}

func (s *BonusService) payOne(runID string, userID int, amount int64, reason string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var alreadyPaid bool
	err = tx.QueryRow("SELECT EXISTS(SELECT 1 FROM distribution_entries WHERE run_id = $1 AND user_id = $2)",
		runID, userID).Scan(&alreadyPaid)
	if err != nil {
		return false, err
	}
	if alreadyPaid {
		return false, nil
	}

	entry, err := s.ledger.ApplyTx(tx, userID, amount, reason)
	if err != nil {
		return false, err
	}

	_, err = tx.Exec("INSERT INTO distribution_entries (run_id, user_id, entry_id) VALUES ($1, $2, $3)",
		runID, userID, entry.EntryID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	s.ledger.PublishEntry(entry)
	return true, nil
}

// DistributeBonus pays a bonus to all users (admin)
// @Summary Distribute bonus
// @Description Credit a flat bonus to every user; re-posting the same run id skips accounts already paid
// @Tags admin
// @Accept json
// @Produce json
// @Param request body DistributeRequest true "Distribution request"
// @Success 200 {object} DistributeResult "Distribution summary"
// @Failure 400 {string} string "Invalid request"
// @Router /admin/bonus [post]
func (s *BonusService) DistributeBonus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req DistributeRequest
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

	result, err := s.Distribute(req.RunID, req.Amount, req.Reason)
	if err != nil {
		log.Printf("[BONUS] Run %s failed: %v", req.RunID, err)
		SendErrorResponse(w, "Failed to distribute bonus", http.StatusInternalServerError, nil)
		return
	}

	go s.telegram.NotifyAdminAction("distribute_bonus", req.Reason)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
