package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cardora-service/internal/broker"
	"cardora-service/internal/models"
	"cardora-service/internal/notify"
	"cardora-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const rsvpRateWindow = time.Minute

// SubmitRSVPRequest is a public guest response
type SubmitRSVPRequest struct {
	InviteSlug string `json:"inviteSlug" binding:"required"`
	GuestName  string `json:"guestName" binding:"required"`
	GuestEmail string `json:"guestEmail,omitempty"`
	GuestPhone string `json:"guestPhone,omitempty"`
	Attending  bool   `json:"attending"`
	GuestCount int    `json:"guestCount"`
	Notes      string `json:"notes,omitempty"`
}

// SubmitRSVPResponse acknowledges a stored response
type SubmitRSVPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// RSVPStats aggregates responses
type RSVPStats struct {
	Total       int `json:"total"`
	Attending   int `json:"attending"`
	Declined    int `json:"declined"`
	TotalGuests int `json:"totalGuests"`
}

func (st *RSVPStats) add(r *models.RSVPRecord) {
	st.Total++
	if r.Attending {
		st.Attending++
		st.TotalGuests += r.GuestCount
	} else {
		st.Declined++
	}
}

// RSVPGroup holds the responses to one invite
type RSVPGroup struct {
	InviteSlug string              `json:"inviteSlug"`
	RSVPs      []models.RSVPRecord `json:"rsvps"`
	Stats      RSVPStats           `json:"stats"`
}

// RSVPListing is an owner's responses grouped by invite
type RSVPListing struct {
	Invites []RSVPGroup `json:"invites"`
	Stats   RSVPStats   `json:"stats"`
}

// RSVPService accepts guest responses and serves them to invite owners
type RSVPService struct {
	rsvps     RSVPStore
	accounts  AccountStore
	publisher Publisher
	notifier  *NotificationDispatcher
	limiter   RateLimiter
	rateLimit int
	logger    *zap.Logger
}

// NewRSVPService creates a new RSVP service. limiter may be nil.
func NewRSVPService(
	rsvps RSVPStore,
	accounts AccountStore,
	publisher Publisher,
	notifier *NotificationDispatcher,
	limiter RateLimiter,
	rateLimit int,
) *RSVPService {
	return &RSVPService{
		rsvps:     rsvps,
		accounts:  accounts,
		publisher: publisher,
		notifier:  notifier,
		limiter:   limiter,
		rateLimit: rateLimit,
		logger:    util.GetLogger(),
	}
}

// AllowSubmission applies the per-client submission limit. A limiter
// failure lets the request through.
func (s *RSVPService) AllowSubmission(ctx context.Context, clientKey string) bool {
	if s.limiter == nil || s.rateLimit <= 0 {
		return true
	}

	ok, err := s.limiter.Allow(ctx, "rsvp:"+clientKey, s.rateLimit, rsvpRateWindow)
	if err != nil {
		s.logger.Warn("RSVP rate limiter unavailable", zap.Error(err))
		return true
	}
	return ok
}

// Submit stores a guest response against the invite that owns the slug
func (s *RSVPService) Submit(ctx context.Context, req *SubmitRSVPRequest) (*SubmitRSVPResponse, error) {
	ctx, span := util.StartSpan(ctx, "RSVPService.Submit")
	defer span.End()

	slug := strings.TrimSpace(req.InviteSlug)
	name := strings.TrimSpace(req.GuestName)
	if slug == "" {
		return nil, validationError("inviteSlug is required")
	}
	if name == "" {
		return nil, validationError("guestName is required")
	}
	if req.GuestCount < 0 {
		return nil, validationError("guestCount must not be negative")
	}

	// only an account's current invite slug accepts responses
	owner, err := s.accounts.GetAccountByInviteSlug(ctx, slug)
	if err != nil {
		return nil, persistenceError("resolve invite slug", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: %s", ErrInviteNotFound, slug)
	}

	guestCount := req.GuestCount
	if guestCount < 1 {
		guestCount = 1
	}

	rec := &models.RSVPRecord{
		ID:             uuid.New().String(),
		InviteSlug:     slug,
		OwnerAccountID: owner.ID,
		GuestName:      name,
		GuestEmail:     strings.TrimSpace(req.GuestEmail),
		GuestPhone:     strings.TrimSpace(req.GuestPhone),
		Attending:      req.Attending,
		GuestCount:     guestCount,
		Notes:          req.Notes,
	}

	if err := s.rsvps.CreateRSVP(ctx, rec); err != nil {
		util.SpanError(span, err)
		return nil, persistenceError("create rsvp", err)
	}

	util.RSVPSubmissionsTotal.WithLabelValues(fmt.Sprintf("%t", rec.Attending)).Inc()
	s.logger.Info("RSVP submitted",
		zap.String("rsvp_id", rec.ID),
		zap.String("invite_slug", slug),
		zap.Bool("attending", rec.Attending))

	s.afterSubmit(ctx, rec, owner)

	message := "Thanks for letting us know."
	if rec.Attending {
		message = "Your RSVP has been received. See you there!"
	}
	return &SubmitRSVPResponse{Success: true, Message: message, ID: rec.ID}, nil
}

func (s *RSVPService) afterSubmit(ctx context.Context, rec *models.RSVPRecord, owner *models.Account) {
	event := &models.RSVPSubmittedEvent{
		BaseEvent:      broker.NewBaseEvent(models.EventTypeRSVPSubmitted),
		RSVPID:         rec.ID,
		InviteSlug:     rec.InviteSlug,
		OwnerAccountID: rec.OwnerAccountID,
		Attending:      rec.Attending,
		GuestCount:     rec.GuestCount,
	}
	if err := s.publisher.PublishRSVPSubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish RSVPSubmitted event", zap.Error(err))
	}

	s.notifier.Dispatch(ctx, notify.RSVPOwnerNotice(owner.Email, rec.GuestName, rec.Attending, rec.GuestCount))

	if rec.Attending && rec.GuestEmail != "" {
		couple := strings.TrimSpace(owner.InviteBride + " & " + owner.InviteGroom)
		s.notifier.Dispatch(ctx, notify.RSVPGuestConfirmation(rec.GuestEmail, rec.GuestName, couple))
	}
}

// List returns the owner's responses grouped by invite slug
func (s *RSVPService) List(ctx context.Context, ownerAccountID string) (*RSVPListing, error) {
	ctx, span := util.StartSpan(ctx, "RSVPService.List")
	defer span.End()

	records, err := s.rsvps.ListRSVPsByOwner(ctx, ownerAccountID)
	if err != nil {
		return nil, persistenceError("list rsvps", err)
	}

	listing := &RSVPListing{Invites: []RSVPGroup{}}
	index := make(map[string]int)

	for i := range records {
		r := &records[i]
		pos, ok := index[r.InviteSlug]
		if !ok {
			pos = len(listing.Invites)
			index[r.InviteSlug] = pos
			listing.Invites = append(listing.Invites, RSVPGroup{InviteSlug: r.InviteSlug})
		}
		group := &listing.Invites[pos]
		group.RSVPs = append(group.RSVPs, *r)
		group.Stats.add(r)
		listing.Stats.add(r)
	}

	return listing, nil
}

// Delete removes one response owned by ownerAccountID
func (s *RSVPService) Delete(ctx context.Context, ownerAccountID, rsvpID string) error {
	ctx, span := util.StartSpan(ctx, "RSVPService.Delete")
	defer span.End()

	rec, err := s.rsvps.GetRSVPByID(ctx, rsvpID)
	if err != nil {
		return persistenceError("get rsvp", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrRSVPNotFound, rsvpID)
	}
	if rec.OwnerAccountID != ownerAccountID {
		return fmt.Errorf("%w: rsvp belongs to another account", ErrForbidden)
	}

	if err := s.rsvps.DeleteRSVP(ctx, rsvpID); err != nil {
		return persistenceError("delete rsvp", err)
	}

	s.logger.Info("RSVP deleted", zap.String("rsvp_id", rsvpID))
	return nil
}
