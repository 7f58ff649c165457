package storage

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrTaskNotFound = errors.New("task not found")
	ErrCodeNotFound = errors.New("verification code not found")
)
