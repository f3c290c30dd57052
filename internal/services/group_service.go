package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
)

// GroupService manages chamas and their memberships
type GroupService struct {
	repo     repository.GroupRepository
	userRepo repository.UserRepository
	loanRepo repository.LoanRepository
	auditSvc *AuditService
}

func NewGroupService(repo repository.GroupRepository, userRepo repository.UserRepository, loanRepo repository.LoanRepository, auditSvc *AuditService) *GroupService {
	return &GroupService{
		repo:     repo,
		userRepo: userRepo,
		loanRepo: loanRepo,
		auditSvc: auditSvc,
	}
}

func (s *GroupService) FindByID(ctx context.Context, id uint) (*models.Group, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByIDWithDetails loads a group with members and loans so the response can
// aggregate outstanding totals
func (s *GroupService) FindByIDWithDetails(ctx context.Context, id uint) (*models.Group, error) {
	return s.repo.FindByIDWithDetails(ctx, id)
}

func (s *GroupService) List(ctx context.Context, query *repository.ListQuery) ([]models.Group, int64, error) {
	return s.repo.List(ctx, query)
}

func (s *GroupService) FindLoans(ctx context.Context, groupID uint) ([]models.Loan, error) {
	return s.loanRepo.FindByGroup(ctx, groupID)
}

func (s *GroupService) FindMembers(ctx context.Context, groupID uint) ([]models.GroupMembership, error) {
	return s.repo.FindMembers(ctx, groupID)
}

func (s *GroupService) Create(ctx context.Context, group *models.Group, actorID uint) error {
	if group.Name == "" {
		return NewValidationError("name", "is required")
	}
	if group.Status == "" {
		group.Status = models.GroupStatusActive
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return NewPersistenceError("create group", err)
	}
	return s.auditSvc.Log(ctx, actorID, "CREATE", "Group", group.ID,
		fmt.Sprintf("Chama created: %s", group.Name), "", "")
}

func (s *GroupService) Update(ctx context.Context, group *models.Group, actorID uint) error {
	if group.Name == "" {
		return NewValidationError("name", "is required")
	}
	switch group.Status {
	case models.GroupStatusActive, models.GroupStatusDormant, models.GroupStatusDissolved:
	default:
		return NewValidationError("status", "unknown status: "+group.Status)
	}
	if err := s.repo.Update(ctx, group); err != nil {
		return NewPersistenceError("update group", err)
	}
	return s.auditSvc.Log(ctx, actorID, "UPDATE", "Group", group.ID,
		fmt.Sprintf("Chama updated: %s", group.Name), "", "")
}

// Delete dissolves a group. Groups with outstanding member loans are kept and
// marked dissolved instead of being removed.
func (s *GroupService) Delete(ctx context.Context, id uint, actorID uint) error {
	group, err := s.repo.FindByIDWithDetails(ctx, id)
	if err != nil {
		return ErrNotFound
	}

	for _, loan := range group.Loans {
		if loan.IsOpen() {
			group.Status = models.GroupStatusDissolved
			if err := s.repo.Update(ctx, group); err != nil {
				return NewPersistenceError("update group", err)
			}
			return s.auditSvc.Log(ctx, actorID, "DISSOLVE", "Group", id,
				fmt.Sprintf("Chama dissolved (open loans remain): %s", group.Name), "", "")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return NewPersistenceError("delete group", err)
	}
	return s.auditSvc.Log(ctx, actorID, "DELETE", "Group", id,
		fmt.Sprintf("Chama deleted: %s", group.Name), "", "")
}

// AddMember enrolls a client into a chama
func (s *GroupService) AddMember(ctx context.Context, groupID, userID uint, role string, actorID uint) (*models.GroupMembership, error) {
	switch role {
	case models.GroupRoleChairperson, models.GroupRoleTreasurer, models.GroupRoleSecretary, models.GroupRoleMember:
	case "":
		role = models.GroupRoleMember
	default:
		return nil, NewValidationError("role", "unknown role: "+role)
	}

	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return nil, ErrNotFound
	}
	if group.Status != models.GroupStatusActive {
		return nil, NewInvariantViolation(
			fmt.Sprintf("cannot add members to a %s chama", group.Status))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrNotFound
	}
	if user.Role != models.RoleClient {
		return nil, NewInvariantViolation("only clients can join a chama")
	}

	if _, err := s.repo.FindMembership(ctx, groupID, userID); err == nil {
		return nil, ErrDuplicate
	}

	membership := &models.GroupMembership{
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	}
	if err := s.repo.AddMember(ctx, membership); err != nil {
		return nil, NewPersistenceError("add member", err)
	}

	s.auditSvc.Log(ctx, actorID, "ADD_MEMBER", "Group", groupID,
		fmt.Sprintf("%s joined chama %s as %s", user.FullName, group.Name, role), "", "")
	return membership, nil
}

// RemoveMember drops a client from a chama
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID uint, actorID uint) error {
	if _, err := s.repo.FindMembership(ctx, groupID, userID); err != nil {
		return ErrNotFound
	}
	if err := s.repo.RemoveMember(ctx, groupID, userID); err != nil {
		return NewPersistenceError("remove member", err)
	}
	return s.auditSvc.Log(ctx, actorID, "REMOVE_MEMBER", "Group", groupID,
		fmt.Sprintf("User %d removed from chama %d", userID, groupID), "", "")
}
