// Package domain contains persistence models for user accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role separates regular metered accounts from operators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an account that owns a bucket, usage records and invoices.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Username     string       `gorm:"type:varchar(80);not null;uniqueIndex" json:"username"`
	Email        string       `gorm:"type:varchar(120);not null;uniqueIndex" json:"email"`
	PasswordHash string       `gorm:"type:varchar(256);not null" json:"-"`
	Role         Role         `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
