package models

import (
	"time"
)

type UserRole string
type UserStatus string

const (
	UserRoleRider  UserRole = "rider"
	UserRoleDriver UserRole = "driver"
	UserRoleAdmin  UserRole = "admin"

	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type User struct {
	ID            string     `json:"id" db:"id"`
	Email         string     `json:"email" db:"email" validate:"required,email"`
	Phone         string     `json:"phone" db:"phone"`
	FirstName     string     `json:"first_name" db:"first_name"`
	LastName      string     `json:"last_name" db:"last_name"`
	Role          UserRole   `json:"role" db:"role" default:"rider"`
	Status        UserStatus `json:"status" db:"status" default:"active"`
	WalletBalance float64    `json:"wallet_balance" db:"wallet_balance"`
	Currency      string     `json:"currency" db:"currency" default:"USD"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type Card struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	CardNumber string    `json:"card_number" db:"card_number"`
	Brand      string    `json:"brand" db:"brand"`
	Limit      float64   `json:"limit" db:"card_limit"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
