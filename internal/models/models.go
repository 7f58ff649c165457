package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleRedactor Role = "redactor"
	RoleAdmin    Role = "admin"
)

// CanEditTasks reports whether the role is allowed to mutate tasks.
func (r Role) CanEditTasks() bool {
	return r == RoleRedactor || r == RoleAdmin
}

type User struct {
	ID         uuid.UUID
	Email      string
	Username   string
	PassHash   string
	IsVerified bool
	Role       Role
}

// UserUpdate carries a partial update, nil fields stay untouched.
type UserUpdate struct {
	Email      *string
	Username   *string
	IsVerified *bool
}

type TaskStatus string

const (
	TaskStatusCreated   TaskStatus = "created"
	TaskStatusInWork    TaskStatus = "in_work"
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid reports whether the status is one of the known values.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusInWork, TaskStatusCompleted:
		return true
	}

	return false
}

type Task struct {
	ID          uuid.UUID
	Name        string
	Description string
	Status      TaskStatus
	CreatedAt   time.Time
}

// Message is the payload published to the mail queue and consumed
// by the mail_sender worker.
type Message struct {
	Email    string `json:"to"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTMLBody string `json:"html,omitempty"`
}
