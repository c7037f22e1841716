package service

import (
	"context"
	"errors"
	"time"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/telemetry"
)

// ShareGrantRepositoryInterface defines the repository interface for share grant persistence
type ShareGrantRepositoryInterface interface {
	// Upsert creates the grant or, if one already exists for the same
	// (knowledge source, grantee) pair, updates its access level.
	Upsert(ctx context.Context, grant *domain.ShareGrant) error
	// Get returns (nil, nil) when no grant exists for the pair.
	Get(ctx context.Context, knowledgeSourceID, userEmail string) (*domain.ShareGrant, error)
	ListBySource(ctx context.Context, knowledgeSourceID string) ([]*domain.ShareGrant, error)
}

// AccessService resolves ownership and share grants before permitting
// search or mutation on a knowledge source.
type AccessService struct {
	sourceRepo SourceRepositoryInterface
	grantRepo  ShareGrantRepositoryInterface
	userRepo   UserRepositoryInterface
}

func NewAccessService(
	sourceRepo SourceRepositoryInterface,
	grantRepo ShareGrantRepositoryInterface,
	userRepo UserRepositoryInterface,
) *AccessService {
	return &AccessService{
		sourceRepo: sourceRepo,
		grantRepo:  grantRepo,
		userRepo:   userRepo,
	}
}

// HasAccess reports whether the user may act on the source at the given
// level. Owners have every level; non-owners need a share grant whose
// level satisfies the requested one (write implies read).
func (s *AccessService) HasAccess(ctx context.Context, userEmail string, source *domain.KnowledgeSource, level domain.AccessLevel) (bool, error) {
	if source.CreatedBy == userEmail {
		return true, nil
	}

	grant, err := s.grantRepo.Get(ctx, source.ID, userEmail)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}
	return domain.GrantSatisfies(grant.AccessLevel, level), nil
}

// RequireAccess is HasAccess returning ErrAccessDenied on a negative
// answer, for call sites that treat denial as a hard stop.
func (s *AccessService) RequireAccess(ctx context.Context, userEmail string, source *domain.KnowledgeSource, level domain.AccessLevel) error {
	ok, err := s.HasAccess(ctx, userEmail, source, level)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAccessDenied
	}
	return nil
}

// ShareInput represents the input for sharing a knowledge source
type ShareInput struct {
	KnowledgeSourceID string
	OwnerEmail        string
	TargetEmail       string
	AccessLevel       domain.AccessLevel
}

// Share grants the target user access to a knowledge source. Only the
// owner may share. Sharing the same source with the same target again
// updates the existing grant's access level.
func (s *AccessService) Share(ctx context.Context, input ShareInput) (*domain.ShareGrant, error) {
	ctx, span := telemetry.StartSpan(ctx, "AccessService.Share", telemetry.SpanAttributes{
		UserEmail: input.OwnerEmail,
		SourceID:  input.KnowledgeSourceID,
		Operation: "share",
	})
	defer span.End()

	if input.KnowledgeSourceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "knowledge source ID is required")
	}
	if input.OwnerEmail == "" || input.TargetEmail == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "owner and target user emails are required")
	}

	level := input.AccessLevel
	if level == "" {
		level = domain.AccessLevelRead
	}

	source, err := s.sourceRepo.GetByID(ctx, input.KnowledgeSourceID)
	if err != nil {
		return nil, err
	}
	if source.CreatedBy != input.OwnerEmail {
		return nil, domain.ErrNotOwner
	}

	if _, err := s.userRepo.GetByEmail(ctx, input.TargetEmail); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	grant := &domain.ShareGrant{
		KnowledgeSourceID: source.ID,
		UserEmail:         input.TargetEmail,
		SharedBy:          input.OwnerEmail,
		AccessLevel:       level,
		SharedAt:          time.Now().UTC(),
	}

	if err := domain.ValidateShareGrant(grant); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid share grant", err)
	}

	if err := s.grantRepo.Upsert(ctx, grant); err != nil {
		return nil, err
	}

	return grant, nil
}
