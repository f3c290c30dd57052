package models

import (
	"time"
)

// Group is a chama, a community savings-and-lending group whose members can
// take loans attributed to the group.
type Group struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"uniqueIndex;not null" json:"name"`
	RegistrationNumber *string   `gorm:"uniqueIndex" json:"registration_number"`
	MeetingDay         *string   `json:"meeting_day"`
	Status             string    `gorm:"default:active;index" json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Associations
	Members []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Loans   []Loan            `gorm:"foreignKey:GroupID" json:"loans,omitempty"`
}

// TableName specifies the table name for Group
func (Group) TableName() string {
	return "groups"
}

// Group status constants
const (
	GroupStatusActive    = "active"
	GroupStatusDormant   = "dormant"
	GroupStatusDissolved = "dissolved"
)

// GroupMembership links a client to a chama with a role
type GroupMembership struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"not null;index;uniqueIndex:idx_group_member" json:"group_id"`
	UserID   uint      `gorm:"not null;index;uniqueIndex:idx_group_member" json:"user_id"`
	Role     string    `gorm:"default:member" json:"role"`
	JoinedAt time.Time `gorm:"type:date" json:"joined_at"`

	// Associations
	Group Group `gorm:"foreignKey:GroupID" json:"-"`
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GroupMembership
func (GroupMembership) TableName() string {
	return "group_memberships"
}

// Group role constants
const (
	GroupRoleChairperson = "chairperson"
	GroupRoleTreasurer   = "treasurer"
	GroupRoleSecretary   = "secretary"
	GroupRoleMember      = "member"
)

// GroupResponse is the JSON response format for groups
type GroupResponse struct {
	ID                 uint      `json:"id"`
	Name               string    `json:"name"`
	RegistrationNumber *string   `json:"registration_number"`
	MeetingDay         *string   `json:"meeting_day"`
	Status             string    `json:"status"`
	MemberCount        int       `json:"member_count"`
	LoanCount          int       `json:"loan_count"`
	TotalOutstanding   float64   `json:"total_outstanding"`
	CreatedAt          time.Time `json:"created_at"`
}

// ToResponse converts Group to GroupResponse, aggregating member loans
func (g *Group) ToResponse() GroupResponse {
	resp := GroupResponse{
		ID:                 g.ID,
		Name:               g.Name,
		RegistrationNumber: g.RegistrationNumber,
		MeetingDay:         g.MeetingDay,
		Status:             g.Status,
		MemberCount:        len(g.Members),
		LoanCount:          len(g.Loans),
		CreatedAt:          g.CreatedAt,
	}
	for _, loan := range g.Loans {
		if loan.IsOpen() {
			resp.TotalOutstanding += loan.OutstandingBalance
		}
	}
	return resp
}
