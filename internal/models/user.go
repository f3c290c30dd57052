package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a staff member or borrowing client
type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Email              string     `gorm:"uniqueIndex;not null" json:"email"`
	EncryptedPassword  string     `gorm:"column:encrypted_password;not null" json:"-"`
	Role               string     `gorm:"default:client" json:"role"`
	FullName           string     `json:"full_name"`
	Phone              string     `gorm:"index" json:"phone"`
	NationalID         string     `gorm:"column:national_id;uniqueIndex" json:"national_id"`
	DateOfBirth        *time.Time `gorm:"type:date" json:"date_of_birth"`
	Occupation         *string    `json:"occupation"`
	Address            *string    `json:"address"`
	Status             string     `gorm:"default:active" json:"status"`
	CreditScore        int        `gorm:"default:0" json:"credit_score"`
	Locale             string     `gorm:"default:en" json:"locale"`
	PhotoPath          *string    `json:"-"`
	RecoveryCode       *string    `json:"-"`
	RecoveryCodeSentAt *time.Time `json:"-"`
	DiscardedAt        *time.Time `gorm:"index" json:"-"`
	CreatedBy          *uint      `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Associations
	Creator       *User          `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Loans         []Loan         `gorm:"foreignKey:ClientID" json:"loans,omitempty"`
	Notifications []Notification `gorm:"foreignKey:UserID" json:"notifications,omitempty"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook for setting defaults
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleClient
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	if u.Locale == "" {
		u.Locale = LocaleEN
	}
	return nil
}

// IsAdmin returns true if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsOfficer returns true if user has loan officer role
func (u *User) IsOfficer() bool {
	return u.Role == RoleOfficer
}

// IsActive returns true if user status is active
func (u *User) IsActive() bool {
	return u.Status == StatusActive && u.DiscardedAt == nil
}

// IsDiscarded returns true if user is soft-deleted
func (u *User) IsDiscarded() bool {
	return u.DiscardedAt != nil
}

// Age returns the client's age in whole years, or -1 when date of birth is unknown
func (u *User) Age() int {
	return u.AgeAt(time.Now())
}

// AgeAt returns the age in whole years at a reference date, or -1 when unknown
func (u *User) AgeAt(ref time.Time) int {
	if u.DateOfBirth == nil {
		return -1
	}
	years := ref.Year() - u.DateOfBirth.Year()
	anniversary := u.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(ref) {
		years--
	}
	return years
}

// Role constants
const (
	RoleAdmin   = "admin"
	RoleOfficer = "officer"
	RoleClient  = "client"
)

// Status constants
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Locale constants
const (
	LocaleEN = "en"
	LocaleSW = "sw"
)

// UserResponse is the JSON response format for users
type UserResponse struct {
	ID          uint       `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Phone       string     `json:"phone"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	NationalID  string     `json:"national_id"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Occupation  *string    `json:"occupation"`
	Address     *string    `json:"address"`
	CreditScore int        `json:"credit_score"`
	Locale      string     `json:"locale"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Phone:       u.Phone,
		Role:        u.Role,
		Status:      u.Status,
		NationalID:  maskIdentity(u.NationalID),
		DateOfBirth: u.DateOfBirth,
		Occupation:  u.Occupation,
		Address:     u.Address,
		CreditScore: u.CreditScore,
		Locale:      u.Locale,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// maskIdentity masks a national ID for privacy, keeping the edges visible
func maskIdentity(identity string) string {
	if len(identity) <= 4 {
		masked := ""
		for range identity {
			masked += "*"
		}
		return masked
	}
	masked := identity[:2]
	for i := 2; i < len(identity)-2; i++ {
		masked += "*"
	}
	return masked + identity[len(identity)-2:]
}
