package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/cashquest/backend/internal/models"
)

// Event is a structured audit record emitted for every balance
// mutation and administrative money operation.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	UserID    int            `json:"user_id,omitempty"`
	EntryID   string         `json:"entry_id,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Balance   int64          `json:"balance,omitempty"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) emit(event Event) {
	event.Timestamp = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("AUDIT: failed to marshal event: %v", err)
		return
	}
	log.Printf("AUDIT: %s", data)
}

// LogEntry records a committed ledger entry.
func (l *Logger) LogEntry(entry *models.LedgerEntry) {
	l.emit(Event{
		Operation: "ledger_apply",
		UserID:    entry.UserID,
		EntryID:   entry.EntryID,
		Amount:    entry.Amount,
		Reason:    entry.Reason,
		Balance:   entry.Balance,
		Details:   map[string]any{"entry_type": entry.EntryType},
	})
}

// LogDistribution records the outcome of a bulk bonus run.
func (l *Logger) LogDistribution(runID string, amount int64, paid, skipped int) {
	l.emit(Event{
		Operation: "bonus_distribution",
		Amount:    amount,
		Details:   map[string]any{"run_id": runID, "paid": paid, "skipped": skipped},
	})
}

// LogError records a failed money operation.
func (l *Logger) LogError(operation string, userID int, err error) {
	l.emit(Event{
		Operation: operation,
		UserID:    userID,
		Error:     err.Error(),
	})
}
