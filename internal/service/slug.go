package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"cardora-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SlugAllocator hands out globally unique invite slugs
type SlugAllocator struct {
	slugs       SlugStore
	maxAttempts int
	logger      *zap.Logger
}

// NewSlugAllocator creates a slug allocator that gives up after maxAttempts candidates
func NewSlugAllocator(slugs SlugStore, maxAttempts int) *SlugAllocator {
	return &SlugAllocator{
		slugs:       slugs,
		maxAttempts: maxAttempts,
		logger:      util.GetLogger(),
	}
}

// Allocate claims the first free candidate of base, base-1, base-2, ...
// A candidate already held by accountID is returned as is.
func (a *SlugAllocator) Allocate(ctx context.Context, name1, name2, accountID, sessionID string) (string, error) {
	ctx, span := util.StartSpan(ctx, "SlugAllocator.Allocate")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SlugAllocationLatency.Observe(time.Since(start).Seconds())
	}()

	base := BaseSlug(name1, name2)

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}

		claimed, owner, err := a.slugs.ClaimSlug(ctx, candidate, accountID, sessionID)
		if err != nil {
			util.SpanError(span, err)
			return "", persistenceError("claim slug", err)
		}
		if claimed || owner == accountID {
			a.logger.Info("Slug allocated",
				zap.String("slug", candidate),
				zap.String("account_id", accountID),
				zap.Bool("reused", !claimed))
			return candidate, nil
		}

		util.SlugCollisionsTotal.Inc()
	}

	a.logger.Error("Slug allocation exhausted",
		zap.String("base", base),
		zap.Int("attempts", a.maxAttempts))
	return "", fmt.Errorf("%w: %s after %d attempts", ErrSlugAllocationExhausted, base, a.maxAttempts)
}

// BaseSlug derives the URL-safe "name1-name2" base
func BaseSlug(name1, name2 string) string {
	parts := make([]string, 0, 2)
	for _, name := range []string{name1, name2} {
		if p := slugPart(name); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "invite"
	}
	return strings.Join(parts, "-")
}

func slugPart(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if b.Len() > 0 && !hyphen {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
