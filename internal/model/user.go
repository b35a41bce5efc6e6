package model

import "time"

// UserRole distinguishes the three account types.
type UserRole string

const (
	RoleStudent   UserRole = "STUDENT"
	RoleInstitute UserRole = "INSTITUTE"
	RoleAdmin     UserRole = "ADMIN"
)

// User represents an account (student, institute or reviewer/admin).
type User struct {
	ID           int       `json:"id"`
	Role         UserRole  `json:"role"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the payload for all login endpoints.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// CreateUserRequest is the payload for creating an account.
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Role     string `json:"role" binding:"required,oneof=STUDENT INSTITUTE ADMIN"`
}
