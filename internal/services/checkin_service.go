package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cashquest/backend/internal/events"
	"github.com/cashquest/backend/internal/models"
)

const (
	checkinCooldown    = 24 * time.Hour
	streakContinuation = 48 * time.Hour
	streakCycleDays    = 7
	checkinHistoryMax  = 30
)

// CheckinService pays a small random daily reward and tracks the
// user's streak. A short Redis lock guards against double-claims from
// parallel requests before the row lock is taken.
type CheckinService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *LedgerService
	broker *events.Broker
}

func NewCheckinService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, broker *events.Broker) *CheckinService {
	return &CheckinService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		broker: broker,
	}
}

// Claim performs the daily check-in
// @Summary Claim daily check-in
// @Description Claim the daily check-in reward; allowed once every 24 hours, streak continues within 48 hours
// @Tags checkin
// @Produce json
// @Success 200 {object} map[string]interface{} "Check-in result"
// @Failure 400 {string} string "Checked in too recently"
// @Failure 401 {string} string "Unauthorized"
// @Failure 429 {string} string "Check-in already in progress"
// @Router /checkin [post]
func (s *CheckinService) Claim(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if s.redis != nil {
		key := fmt.Sprintf("checkin_lock:%d", userID)
		acquired, err := s.redis.SetNX(r.Context(), key, "1", 10*time.Second).Result()
		if err != nil {
			log.Printf("[CHECKIN] Redis lock failed for user %d: %v", userID, err)
		} else if !acquired {
			SendErrorResponse(w, "Check-in already in progress", http.StatusTooManyRequests, nil)
			return
		} else {
			defer s.redis.Del(r.Context(), key)
		}
	}

	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[CHECKIN] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// On a first check-in there is no checkins row to lock, so lock
	// the accounts row instead; it serialises concurrent claims even
	// when Redis is unavailable.
	var locked int
	err = tx.QueryRow("SELECT user_id FROM accounts WHERE user_id = $1 FOR UPDATE", userID).Scan(&locked)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	} else if err != nil {
		log.Printf("[CHECKIN] Account lock failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	var state models.CheckinState
	firstCheckin := false
	err = tx.QueryRow(`
		SELECT user_id, last_checkin, streak, total_rewards
		FROM checkins WHERE user_id = $1 FOR UPDATE`, userID).Scan(
		&state.UserID, &state.LastCheckin, &state.Streak, &state.TotalRewards)
	if err == sql.ErrNoRows {
		firstCheckin = true
	} else if err != nil {
		log.Printf("[CHECKIN] State lookup failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	if !firstCheckin {
		if since := now.Sub(state.LastCheckin); since < checkinCooldown {
			next := state.LastCheckin.Add(checkinCooldown)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error":         "Already checked in today",
				"nextCheckinAt": next,
			})
			return
		}
	}

	streak := 1
	if !firstCheckin && now.Sub(state.LastCheckin) < streakContinuation {
		streak = state.Streak + 1
		if streak > streakCycleDays {
			streak = 1
		}
	}

	// Random whole-rupee reward between 1 and 10.
	reward := int64(rand.Intn(10)+1) * 100

	entry, err := s.ledger.ApplyTx(tx, userID, reward, fmt.Sprintf("Daily check-in reward - Day %d", streak))
	if err != nil {
		log.Printf("[CHECKIN] Reward credit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	_, err = tx.Exec(`
		INSERT INTO checkins (user_id, last_checkin, streak, total_rewards)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET last_checkin = EXCLUDED.last_checkin,
		    streak = EXCLUDED.streak,
		    total_rewards = checkins.total_rewards + $4`,
		userID, now, streak, reward)
	if err != nil {
		log.Printf("[CHECKIN] State upsert failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	_, err = tx.Exec("INSERT INTO checkin_history (user_id, reward, streak, created_at) VALUES ($1, $2, $3, $4)",
		userID, reward, streak, now)
	if err != nil {
		log.Printf("[CHECKIN] History insert failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	// Keep only the most recent history rows per user.
	_, err = tx.Exec(`
		DELETE FROM checkin_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM checkin_history
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)`, userID, checkinHistoryMax)
	if err != nil {
		log.Printf("[CHECKIN] History prune failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[CHECKIN] Commit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to check in", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CHECKIN] User %d checked in - day %d, reward %d", userID, streak, reward)

	s.ledger.PublishEntry(entry)
	s.broker.Publish(events.Event{
		Type:   events.TypeCheckin,
		UserID: userID,
		Payload: map[string]any{
			"streak": streak,
			"reward": reward,
		},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"reward":        reward,
		"streak":        streak,
		"balance":       entry.Balance,
		"nextCheckinAt": now.Add(checkinCooldown),
	})
}

// GetStatus returns the caller's check-in state and recent history
// @Summary Get check-in status
// @Description Get streak, last check-in time and recent check-in history
// @Tags checkin
// @Produce json
// @Success 200 {object} map[string]interface{} "Check-in status"
// @Failure 401 {string} string "Unauthorized"
// @Router /checkin [get]
func (s *CheckinService) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var state models.CheckinState
	err := s.db.QueryRow(`
		SELECT user_id, last_checkin, streak, total_rewards
		FROM checkins WHERE user_id = $1`, userID).Scan(
		&state.UserID, &state.LastCheckin, &state.Streak, &state.TotalRewards)
	if err == sql.ErrNoRows {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"streak":       0,
			"totalRewards": 0,
			"canCheckin":   true,
			"history":      []models.CheckinRecord{},
		})
		return
	}
	if err != nil {
		log.Printf("[CHECKIN] Status lookup failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch check-in status", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, reward, streak, created_at
		FROM checkin_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, checkinHistoryMax)
	if err != nil {
		log.Printf("[CHECKIN] History lookup failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch check-in status", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	history := []models.CheckinRecord{}
	for rows.Next() {
		var rec models.CheckinRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Reward, &rec.Streak, &rec.CreatedAt); err != nil {
			log.Printf("[CHECKIN] Failed to scan history row: %v", err)
			SendErrorResponse(w, "Failed to fetch check-in status", http.StatusInternalServerError, nil)
			return
		}
		history = append(history, rec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"streak":        state.Streak,
		"lastCheckin":   state.LastCheckin,
		"totalRewards":  state.TotalRewards,
		"canCheckin":    time.Since(state.LastCheckin) >= checkinCooldown,
		"nextCheckinAt": state.LastCheckin.Add(checkinCooldown),
		"history":       history,
	})
}
