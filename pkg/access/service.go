// Package access is the single authorization gate for protected media. Every
// read or write of a resource's media goes through Service.Authorize.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/common/validation"
	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

// Capability is an action a user may perform on a resource.
type Capability int

const (
	View Capability = iota
	Upload
)

func (c Capability) String() string {
	switch c {
	case View:
		return "view"
	case Upload:
		return "upload"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// ParseCapability parses "view" or "upload".
func ParseCapability(s string) (Capability, error) {
	switch s {
	case "view":
		return View, nil
	case "upload":
		return Upload, nil
	}
	return 0, fmt.Errorf("unknown capability %q: %w", s, vaulterr.ErrInvalidInput)
}

// Identity is the caller as asserted by the identity provider for one request.
// IsAdministrator must never come from client-declared input.
type Identity struct {
	UserID          string
	IsAdministrator bool
}

// Anonymous reports whether the identity carries no user.
func (i Identity) Anonymous() bool {
	return i.UserID == "" && !i.IsAdministrator
}

// Service evaluates and administers access grants.
type Service struct {
	grants metadata.GrantStore
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates an access control service over grants.
func NewService(grants metadata.GrantStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{
		grants: grants,
		logger: logger.WithComponent("access"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authorize reports whether identity holds capability on resourceID.
// Administrators always pass. A missing grant is (false, nil). If the grant
// store cannot be read the result is false with vaulterr.ErrStorageUnavailable,
// and callers must deny.
func (s *Service) Authorize(ctx context.Context, identity Identity, resourceID string, capability Capability) (bool, error) {
	if identity.IsAdministrator {
		return true, nil
	}
	if identity.UserID == "" || resourceID == "" {
		return false, nil
	}

	grant, err := s.grants.GetGrant(ctx, identity.UserID, resourceID)
	if errors.Is(err, vaulterr.ErrGrantNotFound) {
		return false, nil
	}
	if err != nil {
		if !errors.Is(err, vaulterr.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", vaulterr.ErrStorageUnavailable, err)
		}
		return false, fmt.Errorf("authorize %s on %s: %w", capability, resourceID, err)
	}

	switch capability {
	case View:
		return grant.CanView, nil
	case Upload:
		return grant.CanUpload, nil
	default:
		return false, nil
	}
}

// Grant creates or replaces the grant for (userID, resourceID). Re-granting
// identical capabilities leaves the stored grant untouched. A grant with
// neither capability is a revoke and returns a nil grant.
func (s *Service) Grant(ctx context.Context, userID, resourceID string, canView, canUpload bool, grantedBy string) (*metadata.AccessGrant, error) {
	if userID == "" || resourceID == "" || grantedBy == "" {
		return nil, fmt.Errorf("grant requires user, resource and grantor: %w", vaulterr.ErrInvalidInput)
	}
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if !canView && !canUpload {
		return nil, s.Revoke(ctx, userID, resourceID)
	}

	existing, err := s.grants.GetGrant(ctx, userID, resourceID)
	switch {
	case err == nil:
		if existing.CanView == canView && existing.CanUpload == canUpload {
			return existing, nil
		}
	case !errors.Is(err, vaulterr.ErrGrantNotFound):
		return nil, fmt.Errorf("grant %s on %s: %w", userID, resourceID, err)
	}

	grant := &metadata.AccessGrant{
		UserID:     userID,
		ResourceID: resourceID,
		CanView:    canView,
		CanUpload:  canUpload,
		GrantedBy:  grantedBy,
		GrantedAt:  s.now(),
	}
	if err := s.grants.UpsertGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("grant %s on %s: %w", userID, resourceID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"resource_id": resourceID,
		"can_view":    canView,
		"can_upload":  canUpload,
		"granted_by":  grantedBy,
	}).Info("access granted")

	return grant, nil
}

// Revoke deletes the grant for (userID, resourceID). Revoking a grant that
// does not exist is a no-op.
func (s *Service) Revoke(ctx context.Context, userID, resourceID string) error {
	if userID == "" || resourceID == "" {
		return fmt.Errorf("revoke requires user and resource: %w", vaulterr.ErrInvalidInput)
	}
	if err := s.grants.DeleteGrant(ctx, userID, resourceID); err != nil {
		return fmt.Errorf("revoke %s on %s: %w", userID, resourceID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"resource_id": resourceID,
	}).Info("access revoked")
	return nil
}

// ListGrants returns every grant on resourceID, including who granted it.
func (s *Service) ListGrants(ctx context.Context, resourceID string) ([]*metadata.AccessGrant, error) {
	grants, err := s.grants.ListGrants(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list grants on %s: %w", resourceID, err)
	}
	return grants, nil
}

// ListUserGrants returns every grant held by userID.
func (s *Service) ListUserGrants(ctx context.Context, userID string) ([]*metadata.AccessGrant, error) {
	grants, err := s.grants.ListUserGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants for %s: %w", userID, err)
	}
	return grants, nil
}
