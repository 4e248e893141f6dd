package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// rpcKinds maps RPC error types to the closed error taxonomy
var rpcKinds = map[string]domain.ErrorKind{
	// Session is gone and the account must be linked again
	"AUTH_KEY_UNREGISTERED": domain.KindSessionRevoked,
	"AUTH_KEY_INVALID":      domain.KindSessionRevoked,
	"AUTH_KEY_DUPLICATED":   domain.KindSessionRevoked,
	"SESSION_REVOKED":       domain.KindSessionRevoked,
	"SESSION_EXPIRED":       domain.KindSessionRevoked,
	"USER_DEACTIVATED":      domain.KindSessionRevoked,
	"USER_DEACTIVATED_BAN":  domain.KindSessionRevoked,

	// Failures scoped to one destination group
	"CHAT_WRITE_FORBIDDEN":      domain.KindDestination,
	"CHAT_SEND_PLAIN_FORBIDDEN": domain.KindDestination,
	"CHAT_GUEST_SEND_FORBIDDEN": domain.KindDestination,
	"CHAT_RESTRICTED":           domain.KindDestination,
	"CHAT_ADMIN_REQUIRED":       domain.KindDestination,
	"CHAT_ID_INVALID":           domain.KindDestination,
	"CHANNEL_PRIVATE":           domain.KindDestination,
	"CHANNEL_INVALID":           domain.KindDestination,
	"USER_BANNED_IN_CHANNEL":    domain.KindDestination,
	"USER_KICKED":               domain.KindDestination,
	"PEER_ID_INVALID":           domain.KindDestination,
	"SLOWMODE_WAIT":             domain.KindDestination,
	"TOPIC_CLOSED":              domain.KindDestination,

	"PEER_FLOOD":         domain.KindPeerFlood,
	"PHONE_NUMBER_FLOOD": domain.KindPeerFlood,

	"PHONE_NUMBER_INVALID":    domain.KindInvalidPhone,
	"PHONE_NUMBER_BANNED":     domain.KindInvalidPhone,
	"PHONE_NUMBER_UNOCCUPIED": domain.KindInvalidPhone,

	"PHONE_CODE_INVALID":    domain.KindInvalidCode,
	"PHONE_CODE_EMPTY":      domain.KindInvalidCode,
	"PHONE_CODE_EXPIRED":    domain.KindCodeExpired,
	"PHONE_CODE_HASH_EMPTY": domain.KindCodeExpired,

	"SESSION_PASSWORD_NEEDED": domain.KindPasswordRequired,
	"PASSWORD_HASH_INVALID":   domain.KindInvalidPassword,
}

// classify converts a gotd error into *domain.ProtocolError.
// Context errors and already classified errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pe *domain.ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return domain.NewProtocolError(domain.KindPasswordRequired, "SESSION_PASSWORD_NEEDED", err)
	case errors.Is(err, auth.ErrPasswordInvalid):
		return domain.NewProtocolError(domain.KindInvalidPassword, "PASSWORD_HASH_INVALID", err)
	case errors.Is(err, domain.ErrNotAuthorized):
		return domain.NewProtocolError(domain.KindSessionRevoked, "AUTH_KEY_UNREGISTERED", err)
	case errors.Is(err, domain.ErrNotConnected):
		return domain.NewProtocolError(domain.KindNetwork, "", err)
	}

	var signUp *auth.SignUpRequired
	if errors.As(err, &signUp) {
		return domain.NewProtocolError(domain.KindInvalidPhone, "PHONE_NUMBER_UNOCCUPIED", err)
	}

	if rpcErr, ok := tgerr.As(err); ok {
		switch rpcErr.Type {
		case "FLOOD_WAIT", "FLOOD_PREMIUM_WAIT":
			return domain.NewFloodWaitError(time.Duration(rpcErr.Argument)*time.Second, rpcErr.Type, err)
		}
		if kind, ok := rpcKinds[rpcErr.Type]; ok {
			return domain.NewProtocolError(kind, rpcErr.Type, err)
		}
		if rpcErr.Code >= 500 || rpcErr.Code == -503 {
			return domain.NewProtocolError(domain.KindNetwork, rpcErr.Type, err)
		}
		return domain.NewProtocolError(domain.KindUnknown, rpcErr.Type, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewProtocolError(domain.KindNetwork, "", err)
	}

	return domain.NewProtocolError(domain.KindUnknown, "", err)
}
