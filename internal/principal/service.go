package principal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Service orchestrates principal operations.
type Service struct {
	repo     Repository
	collator *collate.Collator
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		collator: collate.New(language.Und, collate.IgnoreCase),
	}
}

// CreateUser inserts a new user account.
func (s *Service) CreateUser(ctx context.Context, username, name string) (User, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if username == "" {
		return User{}, fmt.Errorf("%w: username required", shared.ErrInvalidArgument)
	}
	return s.repo.CreateUser(ctx, username, name)
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetUserByUsername fetches a user by unique username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}

// ListUsers returns non-sentinel users in stable name order. The store orders
// bytewise; re-sorting with a collator keeps the ordering consistent across
// database locales.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		if c := s.collator.CompareString(users[i].Name, users[j].Name); c != 0 {
			return c < 0
		}
		return s.collator.CompareString(users[i].Username, users[j].Username) < 0
	})
	return users, nil
}

// DeleteUser removes a user account and everything depending on it.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// CreateGroup inserts a group; its resource key is provisioned atomically
// with the row.
func (s *Service) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name required", shared.ErrInvalidArgument)
	}
	return s.repo.CreateGroup(ctx, name, strings.TrimSpace(description))
}

// GetGroup fetches a group by id.
func (s *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// ListGroups returns non-sentinel groups in stable name order.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return s.collator.CompareString(groups[i].Name, groups[j].Name) < 0
	})
	return groups, nil
}

// DeleteGroup removes a group, retiring its resource key.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	return s.repo.DeleteGroup(ctx, id)
}

// AddMembership links a user to a group, idempotently.
func (s *Service) AddMembership(ctx context.Context, userID, groupID int64) error {
	return s.repo.AddMembership(ctx, userID, groupID)
}

// RemoveMembership unlinks a user from a group; absent memberships are a
// no-op.
func (s *Service) RemoveMembership(ctx context.Context, userID, groupID int64) error {
	return s.repo.RemoveMembership(ctx, userID, groupID)
}

// ListGroupsOf returns the user's groups.
func (s *Service) ListGroupsOf(ctx context.Context, userID int64) ([]Group, error) {
	return s.repo.ListGroupsOf(ctx, userID)
}

// ListGroupIDsOf returns the ids of the user's groups.
func (s *Service) ListGroupIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.ListGroupIDsOf(ctx, userID)
}
