// Package gate enforces the profile tag requirement for non-premium users.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	bcerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// TagGate implements deps.TagGate
type TagGate struct {
	tags     []string
	premium  deps.PremiumChecker
	sessions deps.Sessions
	clock    utils.Clock
	logger   zerolog.Logger
}

// New creates a tag gate, no required tags disables the check
func New(tags []string, premium deps.PremiumChecker, sessions deps.Sessions, clock utils.Clock, logger zerolog.Logger) *TagGate {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			normalized = append(normalized, tag)
		}
	}
	return &TagGate{
		tags:     normalized,
		premium:  premium,
		sessions: sessions,
		clock:    clock,
		logger:   logger.With().Str("component", "tag_gate").Logger(),
	}
}

// Check requires every tag in the account's first name, last name or bio unless the user is premium
func (g *TagGate) Check(ctx context.Context, userID, accountID int64) error {
	if len(g.tags) == 0 {
		return nil
	}

	premium, err := g.premium.IsPremium(ctx, userID, g.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to check premium: %w", err)
	}
	if premium {
		return nil
	}

	var profile *domain.Profile
	err = g.sessions.WithClient(ctx, accountID, func(ctx context.Context, client domain.ProtocolClient) error {
		var err error
		profile, err = client.Self(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if missing := g.missing(profile); len(missing) > 0 {
		g.logger.Info().
			Int64("user_id", userID).
			Int64("account_id", accountID).
			Strs("missing", missing).
			Msg("account profile lacks required tags")
		return bcerrors.ErrTagsRequired
	}
	return nil
}

func (g *TagGate) missing(profile *domain.Profile) []string {
	var haystack string
	if profile != nil {
		haystack = strings.ToLower(strings.Join([]string{profile.FirstName, profile.LastName, profile.About}, "\n"))
	}

	var missing []string
	for _, tag := range g.tags {
		if !strings.Contains(haystack, tag) {
			missing = append(missing, tag)
		}
	}
	return missing
}

var _ deps.TagGate = (*TagGate)(nil)
