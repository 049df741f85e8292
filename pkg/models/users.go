package models

import (
	"fmt"
	"time"
)

// UserID identifies a user.
type UserID int64

// Role is a user's actor class.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOperator   Role = "operator"
	RoleSubscriber Role = "subscriber"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleSubscriber:
		return true
	}
	return false
}

// User is a person who can receive alerts. The alert engine only reads users.
type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         Role      `json:"role"`
	EmailEnabled bool      `json:"email_enabled"`
	SMSEnabled   bool      `json:"sms_enabled"`
	PushEnabled  bool      `json:"push_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Recipient returns the projection of u handed to notification providers.
func (u *User) Recipient() Recipient {
	return Recipient{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         u.Role,
		EmailEnabled: u.EmailEnabled,
		SMSEnabled:   u.SMSEnabled,
		PushEnabled:  u.PushEnabled,
	}
}

// Recipient is a resolved alert target without any account or credential fields.
type Recipient struct {
	ID           UserID `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Role         Role   `json:"role"`
	EmailEnabled bool   `json:"email_enabled"`
	SMSEnabled   bool   `json:"sms_enabled"`
	PushEnabled  bool   `json:"push_enabled"`
}

// OptedIn reports whether the recipient accepts notifications on ch and has an
// address for it.
func (r Recipient) OptedIn(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return r.EmailEnabled && r.Email != ""
	case ChannelSMS:
		return r.SMSEnabled && r.Phone != ""
	case ChannelPush:
		return r.PushEnabled
	}
	return false
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	UserID UserID
	Role   Role
}

// UserRoom returns the private realtime channel name of a user.
func UserRoom(id UserID) string {
	return fmt.Sprintf("user-%d", id)
}
