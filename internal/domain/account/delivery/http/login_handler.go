package http

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/dto"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/account/entities"
	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

// AccountHandler handles login and account management HTTP requests
type AccountHandler struct {
	manager deps.SessionManager
	mapper  *pkgerrors.Mapper
	logger  zerolog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(manager deps.SessionManager, mapper *pkgerrors.Mapper, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		manager: manager,
		mapper:  mapper,
		logger:  logger.With().Str("handler", "account").Logger(),
	}
}

// BeginLogin handles POST /api/v1/users/{user_id}/login/phone
func (h *AccountHandler) BeginLogin(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}

	var req dto.BeginLoginRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Phone == "" {
		h.badRequest(ctx, "phone is required")
		return
	}

	res, err := h.manager.BeginLogin(ctx, userID, req.Phone)
	h.writeLogin(ctx, res, err)
}

// SubmitCode handles POST /api/v1/users/{user_id}/login/code
func (h *AccountHandler) SubmitCode(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}

	var req dto.SubmitCodeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.badRequest(ctx, "invalid request body")
		return
	}

	res, err := h.manager.SubmitCode(ctx, userID, req.Code)
	h.writeLogin(ctx, res, err)
}

// SubmitPassword handles POST /api/v1/users/{user_id}/login/password
func (h *AccountHandler) SubmitPassword(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}

	var req dto.SubmitPasswordRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.badRequest(ctx, "invalid request body")
		return
	}

	res, err := h.manager.SubmitPassword(ctx, userID, req.Password)
	h.writeLogin(ctx, res, err)
}

// LoginState handles GET /api/v1/users/{user_id}/login
func (h *AccountHandler) LoginState(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}
	httputil.WriteResponse(ctx, dto.LoginStateResponse{State: string(h.manager.LoginState(userID))})
}

// CancelLogin handles DELETE /api/v1/users/{user_id}/login
func (h *AccountHandler) CancelLogin(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}
	h.manager.CancelLogin(ctx, userID)
	httputil.WriteResponse(ctx, dto.LoginStateResponse{State: string(entities.StateIdle)})
}

// ListAccounts handles GET /api/v1/users/{user_id}/accounts
func (h *AccountHandler) ListAccounts(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}

	accounts, err := h.manager.ListAccounts(ctx, userID)
	if err != nil {
		httputil.WriteResult(ctx, h.mapper, err)
		return
	}

	resp := make([]*dto.AccountResponse, len(accounts))
	for i, account := range accounts {
		resp[i] = dto.NewAccountResponse(account, h.manager.IsConnected(account.ID))
	}
	httputil.WriteResponse(ctx, resp)
}

// SwitchActive handles PUT /api/v1/users/{user_id}/accounts/{account_id}/active
func (h *AccountHandler) SwitchActive(ctx *fasthttp.RequestCtx) {
	userID, accountID, ok := h.userAndAccount(ctx)
	if !ok {
		return
	}

	account, err := h.manager.SwitchActive(ctx, userID, accountID)
	if err != nil {
		httputil.WriteResult(ctx, h.mapper, err)
		return
	}
	httputil.WriteResponse(ctx, dto.NewAccountResponse(account, h.manager.IsConnected(account.ID)))
}

// DeleteAccount handles DELETE /api/v1/users/{user_id}/accounts/{account_id}
func (h *AccountHandler) DeleteAccount(ctx *fasthttp.RequestCtx) {
	userID, accountID, ok := h.userAndAccount(ctx)
	if !ok {
		return
	}

	if err := h.manager.DeleteAccount(ctx, userID, accountID); err != nil {
		httputil.WriteResult(ctx, h.mapper, err)
		return
	}
	httputil.WriteResponse(ctx, nil)
}

func (h *AccountHandler) writeLogin(ctx *fasthttp.RequestCtx, res *entities.LoginResult, err error) {
	if err != nil {
		h.logger.Debug().Err(err).Msg("login step failed")
		httputil.WriteResult(ctx, h.mapper, err)
		return
	}

	resp := dto.LoginResponse{Step: string(res.Step)}
	if res.Account != nil {
		resp.Account = dto.NewAccountResponse(res.Account, h.manager.IsConnected(res.Account.ID))
	}
	httputil.WriteResponse(ctx, resp)
}

func (h *AccountHandler) userID(ctx *fasthttp.RequestCtx) (int64, bool) {
	userID, err := httputil.PathInt64(ctx, "user_id")
	if err != nil {
		h.badRequest(ctx, err.Error())
		return 0, false
	}
	return userID, true
}

func (h *AccountHandler) userAndAccount(ctx *fasthttp.RequestCtx) (int64, int64, bool) {
	userID, ok := h.userID(ctx)
	if !ok {
		return 0, 0, false
	}
	accountID, err := httputil.PathInt64(ctx, "account_id")
	if err != nil {
		h.badRequest(ctx, err.Error())
		return 0, 0, false
	}
	return userID, accountID, true
}

func (h *AccountHandler) badRequest(ctx *fasthttp.RequestCtx, message string) {
	httputil.WriteResult(ctx, h.mapper, pkgerrors.WithCode(pkgerrors.CodeInvalidInput, pkgerrors.NewValidationError(message)))
}
