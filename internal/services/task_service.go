package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/spf13/viper"

	"github.com/cashquest/backend/internal/events"
	"github.com/cashquest/backend/internal/models"
	"github.com/cashquest/backend/internal/notifier"
)

// TaskService handles the task catalog, user submissions and admin
// review. Approval pays the reward through the ledger in the same
// transaction that flips the submission state.
type TaskService struct {
	db        *sql.DB
	ledger    *LedgerService
	broker    *events.Broker
	telegram  *notifier.Telegram
	validator *validator.Validate
}

// CreateTaskRequest represents the admin task creation payload
// @Description Task creation request structure
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,min=3" example:"Install the partner app"`
	Description string     `json:"description" validate:"required" example:"Install and open the app once"`
	Reward      int64      `json:"reward" validate:"required,gt=0" example:"1500"` // in paise
	URL         string     `json:"url" validate:"omitempty,url" example:"https://example.com/app"`
	Steps       []string   `json:"steps" validate:"omitempty,dive,min=1"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// ReviewRequest represents the admin review payload
// @Description Submission review request structure
type ReviewRequest struct {
	Action   string `json:"action" validate:"required,oneof=approve reject" example:"approve"`
	Feedback string `json:"feedback" validate:"omitempty,max=500" example:"Screenshot verified"`
}

func NewTaskService(db *sql.DB, ledger *LedgerService, broker *events.Broker, telegram *notifier.Telegram) *TaskService {
	return &TaskService{
		db:        db,
		ledger:    ledger,
		broker:    broker,
		telegram:  telegram,
		validator: NewValidator(),
	}
}

// ListTasks returns active tasks with the caller's submission status
// @Summary List active tasks
// @Description List active tasks, annotated with the authenticated user's submission status
// @Tags tasks
// @Produce json
// @Success 200 {array} object "Tasks"
// @Failure 401 {string} string "Unauthorized"
// @Router /tasks [get]
func (s *TaskService) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rows, err := s.db.Query(`
		SELECT t.id, t.title, t.description, t.reward, t.url, t.steps, t.status, t.expires_at, t.created_at,
		       COALESCE(ts.status, '')
		FROM tasks t
		LEFT JOIN task_submissions ts
		       ON ts.task_id = t.id AND ts.user_id = $1 AND ts.status IN ('pending', 'approved')
		WHERE t.status = 'active'
		ORDER BY t.created_at DESC`, userID)
	if err != nil {
		log.Printf("[TASK] Failed to list tasks: %v", err)
		SendErrorResponse(w, "Failed to fetch tasks", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type taskWithStatus struct {
		models.Task
		SubmissionStatus string `json:"submission_status,omitempty"`
	}

	tasks := []taskWithStatus{}
	for rows.Next() {
		var t taskWithStatus
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Reward, &t.URL, &t.Steps,
			&t.Status, &t.ExpiresAt, &t.CreatedAt, &t.SubmissionStatus); err != nil {
			log.Printf("[TASK] Failed to scan task: %v", err)
			SendErrorResponse(w, "Failed to fetch tasks", http.StatusInternalServerError, nil)
			return
		}
		tasks = append(tasks, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

// GetTask returns a single task
// @Summary Get task
// @Description Get a single task by id
// @Tags tasks
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {object} models.Task "Task"
// @Failure 404 {string} string "Task not found"
// @Router /tasks/{taskId} [get]
func (s *TaskService) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.Atoi(chi.URLParam(r, "taskId"))
	if err != nil {
		SendErrorResponse(w, "Invalid task id", http.StatusBadRequest, nil)
		return
	}

	var task models.Task
	err = s.db.QueryRow(`
		SELECT id, title, description, reward, url, steps, status, expires_at, created_at
		FROM tasks WHERE id = $1`, taskID).Scan(
		&task.ID, &task.Title, &task.Description, &task.Reward, &task.URL,
		&task.Steps, &task.Status, &task.ExpiresAt, &task.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Task not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TASK] Failed to fetch task %d: %v", taskID, err)
			SendErrorResponse(w, "Failed to fetch task", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// SubmitTask records a completion claim for review
// @Summary Submit task completion
// @Description Submit a completion claim for an active task; it stays pending until an admin reviews it
// @Tags tasks
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {object} models.TaskSubmission "Submission created"
// @Failure 400 {string} string "Invalid task"
// @Failure 409 {string} string "Already submitted"
// @Router /tasks/{taskId}/submit [post]
func (s *TaskService) SubmitTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	taskID, err := strconv.Atoi(chi.URLParam(r, "taskId"))
	if err != nil {
		SendErrorResponse(w, "Invalid task id", http.StatusBadRequest, nil)
		return
	}

	var title string
	var reward int64
	var status string
	var expiresAt *time.Time
	err = s.db.QueryRow("SELECT title, reward, status, expires_at FROM tasks WHERE id = $1", taskID).
		Scan(&title, &reward, &status, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Task not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TASK] Failed to fetch task %d: %v", taskID, err)
			SendErrorResponse(w, "Failed to submit task", http.StatusInternalServerError, nil)
		}
		return
	}

	if status != models.TaskActive || (expiresAt != nil && expiresAt.Before(time.Now())) {
		SendErrorResponse(w, "Task is no longer available", http.StatusBadRequest, nil)
		return
	}

	submission := models.TaskSubmission{
		SubmissionID: uuid.NewString(),
		TaskID:       taskID,
		UserID:       userID,
		Status:       models.SubmissionPending,
		SubmittedAt:  time.Now(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[TASK] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to submit task", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO task_submissions (submission_id, task_id, user_id, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		submission.SubmissionID, taskID, userID, submission.Status, submission.SubmittedAt).
		Scan(&submission.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			log.Printf("[TASK] Duplicate submission for task %d by user %d", taskID, userID)
			SendErrorResponse(w, "Task already submitted", http.StatusConflict, nil)
			return
		}
		log.Printf("[TASK] Submission insert failed for task %d: %v", taskID, err)
		SendErrorResponse(w, "Failed to submit task", http.StatusInternalServerError, nil)
		return
	}

	if _, err := tx.Exec("UPDATE users SET tasks_pending = tasks_pending + 1 WHERE id = $1", userID); err != nil {
		log.Printf("[TASK] Pending counter update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to submit task", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[TASK] Submission commit failed for task %d: %v", taskID, err)
		SendErrorResponse(w, "Failed to submit task", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TASK] User %d submitted task %d (%s)", userID, taskID, submission.SubmissionID)

	go s.notifySubmission(userID, title, reward)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(submission)
}

func (s *TaskService) notifySubmission(userID int, taskTitle string, reward int64) {
	var name, email string
	if err := s.db.QueryRow("SELECT name, email FROM users WHERE id = $1", userID).Scan(&name, &email); err != nil {
		log.Printf("[TASK] Notification lookup failed for user %d: %v", userID, err)
		return
	}
	s.telegram.NotifyTaskSubmission(name, email, taskTitle, reward)
}

// ListMySubmissions returns the caller's submissions
// @Summary List my submissions
// @Description List the authenticated user's task submissions, newest first
// @Tags tasks
// @Produce json
// @Success 200 {array} models.TaskSubmission "Submissions"
// @Failure 401 {string} string "Unauthorized"
// @Router /submissions [get]
func (s *TaskService) ListMySubmissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, submission_id, task_id, user_id, status, COALESCE(feedback, ''), submitted_at, reviewed_at
		FROM task_submissions
		WHERE user_id = $1
		ORDER BY submitted_at DESC`, userID)
	if err != nil {
		log.Printf("[TASK] Failed to list submissions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch submissions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	submissions := []models.TaskSubmission{}
	for rows.Next() {
		var sub models.TaskSubmission
		if err := rows.Scan(&sub.ID, &sub.SubmissionID, &sub.TaskID, &sub.UserID,
			&sub.Status, &sub.Feedback, &sub.SubmittedAt, &sub.ReviewedAt); err != nil {
			log.Printf("[TASK] Failed to scan submission: %v", err)
			SendErrorResponse(w, "Failed to fetch submissions", http.StatusInternalServerError, nil)
			return
		}
		submissions = append(submissions, sub)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(submissions)
}

// CreateTask creates a task (admin)
// @Summary Create task
// @Description Create a new task in the catalog
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateTaskRequest true "Task to create"
// @Success 200 {object} models.Task "Created task"
// @Failure 400 {string} string "Invalid request"
// @Router /admin/tasks [post]
func (s *TaskService) CreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateTaskRequest
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

	task := models.Task{
		Title:       req.Title,
		Description: req.Description,
		Reward:      req.Reward,
		URL:         req.URL,
		Steps:       models.StringList(req.Steps),
		Status:      models.TaskActive,
		ExpiresAt:   req.ExpiresAt,
	}

	err := s.db.QueryRow(`
		INSERT INTO tasks (title, description, reward, url, steps, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		task.Title, task.Description, task.Reward, task.URL, task.Steps, task.Status, task.ExpiresAt).
		Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		log.Printf("[TASK] Task creation failed: %v", err)
		SendErrorResponse(w, "Failed to create task", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TASK] Task %d created: %s", task.ID, task.Title)
	go s.telegram.NotifyAdminAction("create_task", task.Title)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// SetTaskStatus activates or deactivates a task (admin)
// @Summary Set task status
// @Description Toggle a task between active and inactive
// @Tags admin
// @Accept json
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {object} map[string]string "Status updated"
// @Failure 404 {string} string "Task not found"
// @Router /admin/tasks/{taskId}/status [put]
func (s *TaskService) SetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.Atoi(chi.URLParam(r, "taskId"))
	if err != nil {
		SendErrorResponse(w, "Invalid task id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Status string `json:"status" validate:"required,oneof=active inactive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.db.Exec("UPDATE tasks SET status = $1 WHERE id = $2", req.Status, taskID)
	if err != nil {
		log.Printf("[TASK] Status update failed for task %d: %v", taskID, err)
		SendErrorResponse(w, "Failed to update task", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "Task not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[TASK] Task %d set to %s", taskID, req.Status)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": req.Status})
}

// DeleteTask removes a task (admin)
// @Summary Delete task
// @Description Delete a task and its submissions
// @Tags admin
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {object} map[string]string "Deleted"
// @Failure 404 {string} string "Task not found"
// @Router /admin/tasks/{taskId} [delete]
func (s *TaskService) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.Atoi(chi.URLParam(r, "taskId"))
	if err != nil {
		SendErrorResponse(w, "Invalid task id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec("DELETE FROM tasks WHERE id = $1", taskID)
	if err != nil {
		log.Printf("[TASK] Delete failed for task %d: %v", taskID, err)
		SendErrorResponse(w, "Failed to delete task", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "Task not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[TASK] Task %d deleted", taskID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Task deleted"})
}

// ListPendingSubmissions returns submissions waiting for review (admin)
// @Summary List pending submissions
// @Description List all pending task submissions with user and task context
// @Tags admin
// @Produce json
// @Success 200 {array} object "Pending submissions"
// @Router /admin/submissions [get]
func (s *TaskService) ListPendingSubmissions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT ts.id, ts.submission_id, ts.task_id, ts.user_id, ts.submitted_at,
		       u.name, u.email, t.title, t.reward
		FROM task_submissions ts
		JOIN users u ON u.id = ts.user_id
		JOIN tasks t ON t.id = ts.task_id
		WHERE ts.status = 'pending'
		ORDER BY ts.submitted_at ASC`)
	if err != nil {
		log.Printf("[TASK] Failed to list pending submissions: %v", err)
		SendErrorResponse(w, "Failed to fetch submissions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type pendingSubmission struct {
		ID           int       `json:"id"`
		SubmissionID string    `json:"submission_id"`
		TaskID       int       `json:"task_id"`
		UserID       int       `json:"user_id"`
		SubmittedAt  time.Time `json:"submitted_at"`
		UserName     string    `json:"user_name"`
		UserEmail    string    `json:"user_email"`
		TaskTitle    string    `json:"task_title"`
		Reward       int64     `json:"reward"`
	}

	pending := []pendingSubmission{}
	for rows.Next() {
		var p pendingSubmission
		if err := rows.Scan(&p.ID, &p.SubmissionID, &p.TaskID, &p.UserID, &p.SubmittedAt,
			&p.UserName, &p.UserEmail, &p.TaskTitle, &p.Reward); err != nil {
			log.Printf("[TASK] Failed to scan pending submission: %v", err)
			SendErrorResponse(w, "Failed to fetch submissions", http.StatusInternalServerError, nil)
			return
		}
		pending = append(pending, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

// ReviewSubmission approves or rejects a pending submission (admin)
// @Summary Review submission
// @Description Approve (pays the task reward through the ledger) or reject a pending submission
// @Tags admin
// @Accept json
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Param request body ReviewRequest true "Review decision"
// @Success 200 {object} map[string]string "Reviewed"
// @Failure 404 {string} string "Submission not found or already reviewed"
// @Router /admin/submissions/{submissionId}/review [put]
func (s *TaskService) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionId")

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Action == "approve" {
		s.approveSubmission(w, submissionID, req.Feedback)
		return
	}
	s.rejectSubmission(w, submissionID, req.Feedback)
}

func (s *TaskService) approveSubmission(w http.ResponseWriter, submissionID, feedback string) {
	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[TASK] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Only a pending submission can be approved; approving twice
	// would double-pay the reward.
	var taskID, userID int
	err = tx.QueryRow(`
		UPDATE task_submissions
		SET status = 'approved', feedback = $2, reviewed_at = NOW()
		WHERE submission_id = $1 AND status = 'pending'
		RETURNING task_id, user_id`, submissionID, feedback).Scan(&taskID, &userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Submission not found or already reviewed", http.StatusNotFound, nil)
		} else {
			log.Printf("[TASK] Approval update failed for %s: %v", submissionID, err)
			SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		}
		return
	}

	var title string
	var reward int64
	if err := tx.QueryRow("SELECT title, reward FROM tasks WHERE id = $1", taskID).Scan(&title, &reward); err != nil {
		log.Printf("[TASK] Task lookup failed for %d: %v", taskID, err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}

	entry, err := s.ledger.ApplyTx(tx, userID, reward, "Task reward: "+title)
	if err != nil {
		log.Printf("[TASK] Reward credit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}

	var tasksCompleted int
	var referrerID *int
	err = tx.QueryRow(`
		UPDATE users
		SET tasks_pending = GREATEST(tasks_pending - 1, 0), tasks_completed = tasks_completed + 1
		WHERE id = $1
		RETURNING tasks_completed, referrer_id`, userID).Scan(&tasksCompleted, &referrerID)
	if err != nil {
		log.Printf("[TASK] Counter update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[TASK] Approval commit failed for %s: %v", submissionID, err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TASK] Submission %s approved, user %d credited %d", submissionID, userID, reward)

	s.ledger.PublishEntry(entry)
	s.broker.Publish(events.Event{
		Type:   events.TypeTaskReviewed,
		UserID: userID,
		Payload: map[string]any{
			"submission_id": submissionID,
			"status":        models.SubmissionApproved,
			"reward":        reward,
		},
	})

	// The referrer earns a one-time bonus when their invitee clears
	// their first task.
	if tasksCompleted == 1 && referrerID != nil {
		s.creditFirstTaskBonus(*referrerID, userID)
	}

	go s.telegram.NotifyAdminAction("approve_submission", submissionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": models.SubmissionApproved})
}

func (s *TaskService) creditFirstTaskBonus(referrerID, inviteeID int) {
	bonus := viper.GetInt64("rewards.first_task_bonus")
	if bonus <= 0 {
		return
	}

	if _, err := s.ledger.Apply(referrerID, bonus, "Referral first task bonus"); err != nil {
		log.Printf("[TASK] First task bonus credit failed for referrer %d: %v", referrerID, err)
		return
	}

	_, err := s.db.Exec("UPDATE users SET referral_earnings = referral_earnings + $1 WHERE id = $2",
		bonus, referrerID)
	if err != nil {
		log.Printf("[TASK] Referral earnings update failed for referrer %d: %v", referrerID, err)
		return
	}

	log.Printf("[TASK] First task bonus credited to referrer %d for invitee %d", referrerID, inviteeID)
}

func (s *TaskService) rejectSubmission(w http.ResponseWriter, submissionID, feedback string) {
	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[TASK] Transaction start failed: %v", err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var userID int
	err = tx.QueryRow(`
		UPDATE task_submissions
		SET status = 'rejected', feedback = $2, reviewed_at = NOW()
		WHERE submission_id = $1 AND status = 'pending'
		RETURNING user_id`, submissionID, feedback).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Submission not found or already reviewed", http.StatusNotFound, nil)
		} else {
			log.Printf("[TASK] Rejection update failed for %s: %v", submissionID, err)
			SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		}
		return
	}

	_, err = tx.Exec(`
		UPDATE users
		SET tasks_pending = GREATEST(tasks_pending - 1, 0), tasks_rejected = tasks_rejected + 1
		WHERE id = $1`, userID)
	if err != nil {
		log.Printf("[TASK] Counter update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[TASK] Rejection commit failed for %s: %v", submissionID, err)
		SendErrorResponse(w, "Failed to review submission", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TASK] Submission %s rejected", submissionID)

	s.broker.Publish(events.Event{
		Type:   events.TypeTaskReviewed,
		UserID: userID,
		Payload: map[string]any{
			"submission_id": submissionID,
			"status":        models.SubmissionRejected,
			"feedback":      feedback,
		},
	})

	go s.telegram.NotifyAdminAction("reject_submission", submissionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": models.SubmissionRejected})
}
