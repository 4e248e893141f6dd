package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// MTProtoClient implements domain.ProtocolClient using gotd/td library
type MTProtoClient struct {
	// Telegram client instance
	client *telegram.Client

	// API credentials
	apiID   int
	apiHash string
	device  telegram.DeviceConfig

	// Session storage
	storage     session.Storage
	phoneNumber string

	connectTimeout time.Duration

	// Connection state
	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{} // Signals when client.Run() completes

	logger zerolog.Logger

	// API client for making requests
	api *tg.Client

	// Rate limiter for API calls
	rateLimiter *rate.Limiter
}

// MTProtoClientConfig holds configuration for MTProtoClient
type MTProtoClientConfig struct {
	APIID          int
	APIHash        string
	PhoneNumber    string
	DeviceModel    string
	ConnectTimeout time.Duration
	Storage        session.Storage
	Logger         zerolog.Logger
}

// NewMTProtoClient creates a new MTProto client instance
func NewMTProtoClient(cfg MTProtoClientConfig) (*MTProtoClient, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("session storage is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	return &MTProtoClient{
		apiID:          cfg.APIID,
		apiHash:        cfg.APIHash,
		device:         telegram.DeviceConfig{DeviceModel: cfg.DeviceModel},
		phoneNumber:    cfg.PhoneNumber,
		storage:        cfg.Storage,
		connectTimeout: cfg.ConnectTimeout,
		logger:         cfg.Logger.With().Str("component", "mtproto_client").Str("phone", utils.MaskPhoneNumber(cfg.PhoneNumber)).Logger(),
		rateLimiter:    rate.NewLimiter(rate.Every(time.Second), 10), // 10 requests per second
	}, nil
}

// Connect restores the stored session and keeps the connection alive in background.
// A session without authorization is reported as a revoked session.
func (c *MTProtoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return classify(fmt.Errorf("disconnect in progress: %w", domain.ErrNotConnected))
	}
	// Keep the lock to prevent concurrent connection attempts
	defer c.mu.Unlock()

	c.logger.Info().Msg("connecting to Telegram")

	client := telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: c.storage,
		Device:         c.device,
		NoUpdates:      true,
	})

	// Connection lifetime is independent from the caller context
	clientCtx, cancel := context.WithCancel(context.Background())

	readyChan := make(chan struct{})
	errChan := make(chan error, 1)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		err := client.Run(clientCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to check auth status: %w", err)
			}
			if !status.Authorized {
				return domain.ErrNotAuthorized
			}

			close(readyChan)

			// Keep connection alive
			<-ctx.Done()
			return ctx.Err()
		})
		errChan <- err
		c.onRunExit(runDone)
	}()

	timer := time.NewTimer(c.connectTimeout)
	defer timer.Stop()

	select {
	case <-readyChan:
		c.client = client
		c.api = client.API()
		c.cancelFunc = cancel
		c.runDone = runDone
		c.connected = true
		c.logger.Info().Msg("session restored from storage")
		return nil
	case err := <-errChan:
		cancel()
		if err == nil {
			err = domain.ErrNotConnected
		}
		c.logger.Warn().Err(err).Msg("failed to connect")
		return classify(err)
	case <-timer.C:
		cancel()
		return classify(fmt.Errorf("connect timeout after %s: %w", c.connectTimeout, domain.ErrNotConnected))
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// onRunExit resets state when the background connection ends on its own
func (c *MTProtoClient) onRunExit(runDone chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runDone != runDone || c.disconnecting {
		return
	}
	if c.connected {
		c.logger.Warn().Msg("connection to Telegram lost")
	}
	c.client = nil
	c.api = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
}

// Disconnect disconnects from Telegram with graceful shutdown.
// Multiple calls to Disconnect() are safe and will return nil if already disconnected.
func (c *MTProtoClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()

	if c.disconnecting {
		c.mu.Unlock()
		return nil
	}
	if !c.connected {
		c.mu.Unlock()
		return nil
	}

	c.logger.Info().Msg("disconnecting from Telegram")

	c.disconnecting = true
	cancelFunc := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()

		// Wait for client.Run() goroutine to actually finish
		if runDone != nil {
			select {
			case <-runDone:
				c.logger.Debug().Msg("client stopped gracefully")
			case <-ctx.Done():
				c.logger.Warn().Msg("disconnect timeout reached while waiting for client shutdown")
			}
		}
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	return nil
}

// IsConnected checks if client is connected to Telegram
func (c *MTProtoClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// acquire returns the live API client after waiting for the rate limiter
func (c *MTProtoClient) acquire(ctx context.Context) (*telegram.Client, *tg.Client, error) {
	c.mu.RLock()
	client, api, connected := c.client, c.api, c.connected
	c.mu.RUnlock()

	if !connected || client == nil || api == nil {
		return nil, nil, classify(domain.ErrNotConnected)
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	return client, api, nil
}

// Self returns the account profile including bio
func (c *MTProtoClient) Self(ctx context.Context) (*domain.Profile, error) {
	client, api, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	user, err := client.Self(ctx)
	if err != nil {
		return nil, classify(err)
	}
	profile := profileFromUser(user)

	full, err := api.UsersGetFullUser(ctx, &tg.InputUserSelf{})
	if err != nil {
		return nil, classify(err)
	}
	profile.About = full.FullUser.About

	return profile, nil
}

// ListGroups returns basic groups and supergroups the account has not left
func (c *MTProtoClient) ListGroups(ctx context.Context) ([]domain.Group, error) {
	_, api, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := listGroups(ctx, api)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Int("groups", len(groups)).Msg("listed groups")
	return groups, nil
}

// SendMessage sends text with formatting entities to a group
func (c *MTProtoClient) SendMessage(ctx context.Context, peer domain.Peer, msg domain.Message) error {
	_, api, err := c.acquire(ctx)
	if err != nil {
		return err
	}

	randomID, err := newRandomID()
	if err != nil {
		return classify(fmt.Errorf("failed to generate random id: %w", err))
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     toInputPeer(peer),
		Message:  msg.Text,
		RandomID: randomID,
	}
	if entities := toTGEntities(msg.Entities); len(entities) > 0 {
		req.SetEntities(entities)
	}

	if _, err := api.MessagesSendMessage(ctx, req); err != nil {
		return classify(err)
	}
	return nil
}

// LatestSavedMessage returns the newest note in Saved Messages, nil if there is none
func (c *MTProtoClient) LatestSavedMessage(ctx context.Context) (*domain.Message, error) {
	_, api, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerSelf{},
		Limit: 1,
	})
	if err != nil {
		return nil, classify(err)
	}

	return firstMessage(res), nil
}

// newRandomID returns the client-side id that makes a send idempotent on the server
func newRandomID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Ensure MTProtoClient implements domain.ProtocolClient interface
var _ domain.ProtocolClient = (*MTProtoClient)(nil)
