package service

import (
	"context"
	"fmt"
	"strings"

	"cardora-service/internal/models"
	"cardora-service/internal/util"

	"go.uber.org/zap"
)

// Entitlements is an account's unlocked features
type Entitlements struct {
	CardUnlocked   bool   `json:"cardUnlocked"`
	InviteUnlocked bool   `json:"inviteUnlocked"`
	InviteSlug     string `json:"inviteSlug,omitempty"`
	InviteURL      string `json:"inviteUrl,omitempty"`
}

// PublicInvite is the guest-facing view of an invite
type PublicInvite struct {
	Slug        string `json:"slug"`
	Template    string `json:"template"`
	Bride       string `json:"bride"`
	Groom       string `json:"groom"`
	WeddingDate string `json:"weddingDate,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Message     string `json:"message,omitempty"`
}

// InviteService reads entitlements and edits materialized invites
type InviteService struct {
	accounts      AccountStore
	slugs         *SlugAllocator
	inviteBaseURL string
	logger        *zap.Logger
}

// NewInviteService creates a new invite service
func NewInviteService(accounts AccountStore, slugs *SlugAllocator, inviteBaseURL string) *InviteService {
	return &InviteService{
		accounts:      accounts,
		slugs:         slugs,
		inviteBaseURL: strings.TrimRight(inviteBaseURL, "/"),
		logger:        util.GetLogger(),
	}
}

// GetEntitlements returns the account's flags and invite address
func (s *InviteService) GetEntitlements(ctx context.Context, accountID string) (*Entitlements, error) {
	acct, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, persistenceError("get account", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: unknown account", ErrNotEligible)
	}

	ent := &Entitlements{
		CardUnlocked:   acct.CardUnlocked,
		InviteUnlocked: acct.InviteUnlocked,
		InviteSlug:     acct.InviteSlug,
	}
	if acct.HasInvite() {
		ent.InviteURL = s.inviteURL(acct.InviteSlug)
	}
	return ent, nil
}

// GetPublicInvite resolves a slug to its invite content
func (s *InviteService) GetPublicInvite(ctx context.Context, slug string) (*PublicInvite, error) {
	acct, err := s.accounts.GetAccountByInviteSlug(ctx, slug)
	if err != nil {
		return nil, persistenceError("get account by slug", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %s", ErrInviteNotFound, slug)
	}

	return &PublicInvite{
		Slug:        acct.InviteSlug,
		Template:    acct.InviteTemplate,
		Bride:       acct.InviteBride,
		Groom:       acct.InviteGroom,
		WeddingDate: acct.InviteDate,
		Venue:       acct.InviteVenue,
		Message:     acct.InviteMessage,
	}, nil
}

// SaveInvite writes invite content for an account that has unlocked
// invites. An existing slug is kept; a first save allocates one.
func (s *InviteService) SaveInvite(ctx context.Context, accountID string, invite *models.InviteItem) (*CreatedInvite, error) {
	ctx, span := util.StartSpan(ctx, "InviteService.SaveInvite")
	defer span.End()

	if invite == nil {
		return nil, validationError("invite is required")
	}
	if err := invite.Validate(); err != nil {
		return nil, validationError("%v", err)
	}

	acct, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, persistenceError("get account", err)
	}
	if acct == nil || !acct.InviteUnlocked {
		return nil, fmt.Errorf("%w: invites are not unlocked", ErrNotEligible)
	}

	slug := acct.InviteSlug
	if slug == "" {
		slug, err = s.slugs.Allocate(ctx, invite.Bride, invite.Groom, accountID, "account:"+accountID)
		if err != nil {
			util.SpanError(span, err)
			return nil, err
		}
	}

	if err := s.accounts.SaveInviteDetails(ctx, accountID, slug, invite); err != nil {
		return nil, persistenceError("save invite details", err)
	}

	s.logger.Info("Invite saved", zap.String("account_id", accountID), zap.String("slug", slug))
	return &CreatedInvite{Slug: slug, URL: s.inviteURL(slug)}, nil
}

func (s *InviteService) inviteURL(slug string) string {
	return s.inviteBaseURL + "/" + slug
}
