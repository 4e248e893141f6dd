package dto

import (
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/utils"
)

// BeginLoginRequest request to send a verification code
type BeginLoginRequest struct {
	Phone string `json:"phone"`
}

// SubmitCodeRequest request to submit the verification code
type SubmitCodeRequest struct {
	Code string `json:"code"`
}

// SubmitPasswordRequest request to submit 2FA password
type SubmitPasswordRequest struct {
	Password string `json:"password"`
}

// LoginResponse response after a login step
type LoginResponse struct {
	Step    string           `json:"step"`
	Account *AccountResponse `json:"account,omitempty"`
}

// LoginStateResponse response for login state check
type LoginStateResponse struct {
	State string `json:"state"`
}

// AccountResponse linked account view, phone is masked
type AccountResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	IsProtected bool      `json:"is_protected"`
	Revoked     bool      `json:"revoked"`
	Connected   bool      `json:"connected"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAccountResponse builds the account view
func NewAccountResponse(account *entities.Account, connected bool) *AccountResponse {
	if account == nil {
		return nil
	}
	return &AccountResponse{
		ID:          account.ID,
		UserID:      account.UserID,
		Phone:       utils.MaskPhoneNumber(account.Phone),
		DisplayName: account.DisplayName,
		IsActive:    account.IsActive,
		IsProtected: account.IsProtected,
		Revoked:     account.Revoked,
		Connected:   connected,
		CreatedAt:   account.CreatedAt,
	}
}
