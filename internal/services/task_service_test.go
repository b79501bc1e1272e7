package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/cashquest/backend/internal/audit"
	"github.com/cashquest/backend/internal/events"
)

func newTestTaskService(t *testing.T) (*TaskService, sqlmock.Sqlmock, *events.Broker) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broker := events.NewBroker()
	ledger := NewLedgerService(db, audit.NewLogger(), broker)
	return NewTaskService(db, ledger, broker, nil), mock, broker
}

func requestWithUser(r *http.Request, userID int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func requestWithURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestTaskService_SubmitTask(t *testing.T) {
	service, mock, _ := newTestTaskService(t)

	t.Run("successful submission", func(t *testing.T) {
		mock.ExpectQuery("SELECT title, reward, status, expires_at FROM tasks WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"title", "reward", "status", "expires_at"}).
				AddRow("Install app", 1500, "active", nil))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO task_submissions").
			WithArgs(sqlmock.AnyArg(), 3, 7, "pending", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectExec("UPDATE users SET tasks_pending = tasks_pending \\+ 1").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		r := httptest.NewRequest("POST", "/tasks/3/submit", nil)
		r = requestWithUser(r, 7)
		r = requestWithURLParam(r, "taskId", "3")
		w := httptest.NewRecorder()

		service.SubmitTask(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("duplicate submission is rejected", func(t *testing.T) {
		mock.ExpectQuery("SELECT title, reward, status, expires_at FROM tasks WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"title", "reward", "status", "expires_at"}).
				AddRow("Install app", 1500, "active", nil))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO task_submissions").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		r := httptest.NewRequest("POST", "/tasks/3/submit", nil)
		r = requestWithUser(r, 7)
		r = requestWithURLParam(r, "taskId", "3")
		w := httptest.NewRecorder()

		service.SubmitTask(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("expired task is not submittable", func(t *testing.T) {
		expired := time.Now().Add(-time.Hour)
		mock.ExpectQuery("SELECT title, reward, status, expires_at FROM tasks WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"title", "reward", "status", "expires_at"}).
				AddRow("Install app", 1500, "active", expired))

		r := httptest.NewRequest("POST", "/tasks/3/submit", nil)
		r = requestWithUser(r, 7)
		r = requestWithURLParam(r, "taskId", "3")
		w := httptest.NewRecorder()

		service.SubmitTask(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inactive task is not submittable", func(t *testing.T) {
		mock.ExpectQuery("SELECT title, reward, status, expires_at FROM tasks WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"title", "reward", "status", "expires_at"}).
				AddRow("Install app", 1500, "inactive", nil))

		r := httptest.NewRequest("POST", "/tasks/3/submit", nil)
		r = requestWithUser(r, 7)
		r = requestWithURLParam(r, "taskId", "3")
		w := httptest.NewRecorder()

		service.SubmitTask(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func reviewRequest(t *testing.T, submissionID, action string) *http.Request {
	t.Helper()
	body, _ := json.Marshal(ReviewRequest{Action: action, Feedback: "checked"})
	r := httptest.NewRequest("POST", "/admin/submissions/"+submissionID+"/review", bytes.NewBuffer(body))
	return requestWithURLParam(r, "submissionId", submissionID)
}

func TestTaskService_ReviewSubmission(t *testing.T) {
	viper.Set("rewards.first_task_bonus", int64(0))
	service, mock, broker := newTestTaskService(t)

	t.Run("approval credits the reward in one transaction", func(t *testing.T) {
		ch, cancel := broker.Subscribe(7)
		defer cancel()

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE task_submissions").
			WithArgs("sub-1", "checked").
			WillReturnRows(sqlmock.NewRows([]string{"task_id", "user_id"}).AddRow(3, 7))
		mock.ExpectQuery("SELECT title, reward FROM tasks WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"title", "reward"}).AddRow("Install app", 1500))

		expectAccountLock(mock, 7, 10000, 10000, 0, 2)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2").
			WithArgs(int64(11500), int64(11500), sqlmock.AnyArg(), 7, 2).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), 7, int64(1500), "CREDIT", "Task reward: Install app", int64(11500), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("UPDATE users").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"tasks_completed", "referrer_id"}).AddRow(2, nil))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		service.ReviewSubmission(w, reviewRequest(t, "sub-1", "approve"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())

		// Ledger entry and review outcome both reach the stream.
		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			select {
			case ev := <-ch:
				seen[ev.Type] = true
			case <-time.After(time.Second):
				t.Fatal("expected two events")
			}
		}
		assert.True(t, seen[events.TypeLedgerEntry])
		assert.True(t, seen[events.TypeTaskReviewed])
	})

	t.Run("first approved task pays the referrer bonus", func(t *testing.T) {
		viper.Set("rewards.first_task_bonus", int64(1000))
		defer viper.Set("rewards.first_task_bonus", int64(0))

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE task_submissions").
			WithArgs("sub-2", "checked").
			WillReturnRows(sqlmock.NewRows([]string{"task_id", "user_id"}).AddRow(3, 7))
		mock.ExpectQuery("SELECT title, reward FROM tasks WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"title", "reward"}).AddRow("Install app", 1500))

		expectAccountLock(mock, 7, 0, 0, 0, 1)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("UPDATE users").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"tasks_completed", "referrer_id"}).AddRow(1, 9))
		mock.ExpectCommit()

		// Referrer bonus in its own ledger transaction.
		mock.ExpectBegin()
		expectAccountLock(mock, 9, 2000, 2000, 0, 1)
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2").
			WithArgs(int64(3000), int64(3000), sqlmock.AnyArg(), 9, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), 9, int64(1000), "CREDIT", "Referral first task bonus", int64(3000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		mock.ExpectExec("UPDATE users SET referral_earnings = referral_earnings \\+ \\$1").
			WithArgs(int64(1000), 9).
			WillReturnResult(sqlmock.NewResult(1, 1))

		w := httptest.NewRecorder()
		service.ReviewSubmission(w, reviewRequest(t, "sub-2", "approve"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already reviewed submission", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE task_submissions").
			WithArgs("sub-3", "checked").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		service.ReviewSubmission(w, reviewRequest(t, "sub-3", "approve"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejection moves no money", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE task_submissions").
			WithArgs("sub-4", "checked").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
		mock.ExpectExec("UPDATE users").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		service.ReviewSubmission(w, reviewRequest(t, "sub-4", "reject"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid action", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"action": "maybe"})
		r := httptest.NewRequest("POST", "/admin/submissions/sub-5/review", bytes.NewBuffer(body))
		r = requestWithURLParam(r, "submissionId", "sub-5")
		w := httptest.NewRecorder()

		service.ReviewSubmission(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
