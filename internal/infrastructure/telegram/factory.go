package telegram

import (
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// ClientFactory creates MTProto clients backed by PostgreSQL session storage
type ClientFactory struct {
	db             *gorm.DB
	apiID          int
	apiHash        string
	deviceModel    string
	connectTimeout time.Duration
	logger         zerolog.Logger
}

// NewClientFactory creates a new client factory
func NewClientFactory(db *gorm.DB, apiID int, apiHash, deviceModel string, connectTimeout time.Duration, logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		db:             db,
		apiID:          apiID,
		apiHash:        apiHash,
		deviceModel:    deviceModel,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// NewClient creates a disconnected client for a linked account
func (f *ClientFactory) NewClient(accountID int64, phone string) (domain.ProtocolClient, error) {
	storage, err := NewPostgresSessionStorage(f.db, accountID)
	if err != nil {
		return nil, err
	}

	return NewMTProtoClient(MTProtoClientConfig{
		APIID:          f.apiID,
		APIHash:        f.apiHash,
		PhoneNumber:    phone,
		DeviceModel:    f.deviceModel,
		ConnectTimeout: f.connectTimeout,
		Storage:        storage,
		Logger:         f.logger.With().Int64("account_id", accountID).Logger(),
	})
}

var _ domain.ClientFactory = (*ClientFactory)(nil)
