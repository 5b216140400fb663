package domain

import "time"

// User types
const (
	UserTypeTipper = "tipper"
	UserTypeGuard  = "guard"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User Model
type User struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"` // UUID
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string    `gorm:"size:128;not null" json:"name"`
	PhoneNumber  string    `gorm:"size:20" json:"phone_number,omitempty"`
	UserType     string    `gorm:"size:16;default:tipper" json:"user_type"` // tipper or guard
	Role         string    `gorm:"size:16;default:user" json:"role"`        // user or admin
	GuardID      string    `gorm:"size:64" json:"guard_id,omitempty"`       // Linked guard profile for guard users
	PasswordHash string    `gorm:"not null" json:"-"`                       // bcrypt hash
	CreatedAt    time.Time `json:"created_at"`
	Wallet       *Wallet   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"wallet,omitempty"`
}
