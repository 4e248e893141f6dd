package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	accdeps "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	accentities "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	bcerrors "github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

type profileClient struct {
	domain.ProtocolClient
	profile *domain.Profile
	calls   int
}

func (c *profileClient) Self(ctx context.Context) (*domain.Profile, error) {
	c.calls++
	return c.profile, nil
}

type stubSessions struct {
	client *profileClient
}

func (s *stubSessions) Account(ctx context.Context, accountID int64) (*accentities.Account, error) {
	return &accentities.Account{ID: accountID}, nil
}

func (s *stubSessions) WithClient(ctx context.Context, accountID int64, fn func(ctx context.Context, client domain.ProtocolClient) error) error {
	return fn(ctx, s.client)
}

func (s *stubSessions) DetectRevocation(ctx context.Context, accountID int64, err error) bool {
	return false
}

func (s *stubSessions) Subscribe(accdeps.LifecycleListener) {}

type premiumFunc func(userID int64) (bool, error)

func (f premiumFunc) IsPremium(ctx context.Context, userID int64, now time.Time) (bool, error) {
	return f(userID)
}

func notPremium(int64) (bool, error) { return false, nil }

func TestTagGate_Check(t *testing.T) {
	tests := []struct {
		name    string
		tags    []string
		profile *domain.Profile
		premium premiumFunc
		wantErr error
	}{
		{
			name:    "no tags configured",
			profile: &domain.Profile{},
			premium: notPremium,
		},
		{
			name:    "tag in first name",
			tags:    []string{"@adbot"},
			profile: &domain.Profile{FirstName: "Anna @AdBot"},
			premium: notPremium,
		},
		{
			name:    "tags split over name and bio",
			tags:    []string{"@adbot", "#promo"},
			profile: &domain.Profile{LastName: "@adbot", About: "daily #promo"},
			premium: notPremium,
		},
		{
			name:    "missing tag",
			tags:    []string{"@adbot", "#promo"},
			profile: &domain.Profile{FirstName: "@adbot"},
			premium: notPremium,
			wantErr: bcerrors.ErrTagsRequired,
		},
		{
			name:    "premium exempts",
			tags:    []string{"@adbot"},
			profile: &domain.Profile{FirstName: "Anna"},
			premium: func(int64) (bool, error) { return true, nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &profileClient{profile: tt.profile}
			g := New(tt.tags, tt.premium, &stubSessions{client: client}, utils.NewRealClock(), zerolog.Nop())

			err := g.Check(context.Background(), 1, 2)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTagGate_PremiumSkipsProfileLookup(t *testing.T) {
	client := &profileClient{profile: &domain.Profile{}}
	g := New([]string{"@adbot"}, premiumFunc(func(int64) (bool, error) { return true, nil }),
		&stubSessions{client: client}, utils.NewRealClock(), zerolog.Nop())

	assert.NoError(t, g.Check(context.Background(), 1, 2))
	assert.Equal(t, 0, client.calls)
}

func TestTagGate_PremiumLookupError(t *testing.T) {
	g := New([]string{"@adbot"}, premiumFunc(func(int64) (bool, error) { return false, errors.New("db down") }),
		&stubSessions{client: &profileClient{}}, utils.NewRealClock(), zerolog.Nop())

	assert.Error(t, g.Check(context.Background(), 1, 2))
}
