package acl

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/gatehouse-io/gatehouse/internal/principal"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// DecisionObserver records allow/deny outcomes. Satisfied by
// observability.Metrics; nil disables recording.
type DecisionObserver interface {
	ObserveDecision(allowed bool)
}

// Service is the authorization resolver. It consumes the grant store, which
// in turn folds in the membership and any-user channels.
type Service struct {
	store    Store
	observer DecisionObserver
	flight   singleflight.Group
}

// NewService constructs a Service. observer may be nil.
func NewService(store Store, observer DecisionObserver) *Service {
	return &Service{store: store, observer: observer}
}

// Grant inserts one tuple per requested kind for the principal, dispatching
// on the principal's tag. Duplicate tuples are no-ops; an empty kind set does
// nothing.
func (s *Service) Grant(ctx context.Context, p principal.Principal, kinds []Kind, resourceKey string) error {
	kinds, err := validateKinds(kinds)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		return nil
	}
	if resourceKey == "" {
		return fmt.Errorf("%w: resource key required", shared.ErrInvalidArgument)
	}
	switch p.Kind {
	case principal.KindUser:
		return s.store.InsertUserGrants(ctx, p.ID, resourceKey, kinds)
	case principal.KindGroup:
		return s.store.InsertGroupGrants(ctx, p.ID, resourceKey, kinds)
	default:
		return fmt.Errorf("%w: principal kind %d", shared.ErrInvalidArgument, p.Kind)
	}
}

// Revoke removes matching tuples for the principal. Revoking grants that do
// not exist is a no-op.
func (s *Service) Revoke(ctx context.Context, p principal.Principal, kinds []Kind, resourceKey string) error {
	kinds, err := validateKinds(kinds)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		return nil
	}
	if resourceKey == "" {
		return fmt.Errorf("%w: resource key required", shared.ErrInvalidArgument)
	}
	switch p.Kind {
	case principal.KindUser:
		return s.store.DeleteUserGrants(ctx, p.ID, resourceKey, kinds)
	case principal.KindGroup:
		return s.store.DeleteGroupGrants(ctx, p.ID, resourceKey, kinds)
	default:
		return fmt.Errorf("%w: principal kind %d", shared.ErrInvalidArgument, p.Kind)
	}
}

// EffectivePermissions returns the deduplicated union of every kind the user
// holds on the resource, through any channel. The result is sorted for stable
// output.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64, resourceKey string) ([]Kind, error) {
	kinds, err := s.store.Permissions(ctx, userID, resourceKey)
	if err != nil {
		return nil, err
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds, nil
}

// Can reports whether the user holds the kind on the resource. False is a
// decision, not an error; the error return carries only invalid references
// and store faults. Concurrent identical checks are coalesced into one store
// query.
func (s *Service) Can(ctx context.Context, userID int64, kind Kind, resourceKey string) (bool, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return false, err
	}
	if err := s.checkReferences(ctx, userID, resourceKey); err != nil {
		return false, err
	}

	key := fmt.Sprintf("%d\x00%s\x00%s", userID, resourceKey, kind)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.store.HasPermission(ctx, userID, resourceKey, kind)
	})
	if err != nil {
		return false, err
	}
	allowed := v.(bool)
	if s.observer != nil {
		s.observer.ObserveDecision(allowed)
	}
	return allowed, nil
}

// AllGrantedResources returns every (resource key, kind) pair the user can
// reach. Expensive unscoped scan; administrative use only.
func (s *Service) AllGrantedResources(ctx context.Context, userID int64) ([]ResourceGrant, error) {
	return s.store.AllPermissions(ctx, userID)
}

func (s *Service) checkReferences(ctx context.Context, userID int64, resourceKey string) error {
	if resourceKey == "" {
		return fmt.Errorf("%w: resource key required", shared.ErrInvalidArgument)
	}
	ok, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d", shared.ErrInvalidArgument, userID)
	}
	ok, err = s.store.ResourceExists(ctx, resourceKey)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: resource %q", shared.ErrInvalidArgument, resourceKey)
	}
	return nil
}

func validateKinds(kinds []Kind) ([]Kind, error) {
	seen := make(map[Kind]struct{}, len(kinds))
	out := kinds[:0:0]
	for _, k := range kinds {
		if _, err := ParseKind(string(k)); err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}
