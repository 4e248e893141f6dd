package http

import (
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/dto"
	pkgerrors "github.com/Conte777/NewsFlow/services/broadcast-service/pkg/errors"
	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

const (
	defaultRecentCycles = 10
	maxRecentCycles     = 100
)

// BroadcastHandler handles broadcast control HTTP requests
type BroadcastHandler struct {
	scheduler deps.Scheduler
	cycles    deps.CycleStore
	mapper    *pkgerrors.Mapper
	logger    zerolog.Logger
}

// NewBroadcastHandler creates a new broadcast handler
func NewBroadcastHandler(scheduler deps.Scheduler, cycles deps.CycleStore, mapper *pkgerrors.Mapper, logger zerolog.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		scheduler: scheduler,
		cycles:    cycles,
		mapper:    mapper,
		logger:    logger.With().Str("handler", "broadcast").Logger(),
	}
}

// Start handles POST /api/v1/users/{user_id}/accounts/{account_id}/broadcast/start
func (h *BroadcastHandler) Start(ctx *fasthttp.RequestCtx) {
	userID, accountID, ok := h.userAndAccount(ctx)
	if !ok {
		return
	}

	if err := h.scheduler.Start(ctx, userID, accountID); err != nil {
		h.logger.Debug().Err(err).Int64("user_id", userID).Int64("account_id", accountID).Msg("start rejected")
		httputil.WriteResult(ctx, h.mapper, err)
		return
	}

	job, _ := h.scheduler.Job(userID, accountID)
	resp := dto.BroadcastStatusResponse{AccountID: accountID, Running: true, RecentCycles: []dto.CycleResponse{}}
	if job != nil {
		resp.Job = dto.NewJobResponse(job)
	}
	httputil.WriteResponseWithStatus(ctx, resp, fasthttp.StatusAccepted)
}

// Stop handles POST /api/v1/users/{user_id}/accounts/{account_id}/broadcast/stop
func (h *BroadcastHandler) Stop(ctx *fasthttp.RequestCtx) {
	userID, accountID, ok := h.userAndAccount(ctx)
	if !ok {
		return
	}

	h.scheduler.Stop(ctx, userID, accountID)

	resp := dto.BroadcastStatusResponse{AccountID: accountID, RecentCycles: []dto.CycleResponse{}}
	if job, ok := h.scheduler.Job(userID, accountID); ok {
		resp.Job = dto.NewJobResponse(job)
	}
	httputil.WriteResponse(ctx, resp)
}

// Status handles GET /api/v1/users/{user_id}/accounts/{account_id}/broadcast
func (h *BroadcastHandler) Status(ctx *fasthttp.RequestCtx) {
	userID, accountID, ok := h.userAndAccount(ctx)
	if !ok {
		return
	}

	limit := defaultRecentCycles
	if raw := ctx.QueryArgs().Peek("cycles"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil || n < 0 || n > maxRecentCycles {
			h.badRequest(ctx, "cycles must be between 0 and "+strconv.Itoa(maxRecentCycles))
			return
		}
		limit = n
	}

	resp := dto.BroadcastStatusResponse{
		AccountID:    accountID,
		Running:      h.scheduler.IsRunning(userID, accountID),
		RecentCycles: []dto.CycleResponse{},
	}
	if job, ok := h.scheduler.Job(userID, accountID); ok {
		resp.Job = dto.NewJobResponse(job)
	}

	if limit > 0 {
		cycles, err := h.cycles.ListRecent(ctx, accountID, limit)
		if err != nil {
			httputil.WriteResult(ctx, h.mapper, err)
			return
		}
		for _, c := range cycles {
			if c.UserID == userID {
				resp.RecentCycles = append(resp.RecentCycles, dto.NewCycleResponse(c))
			}
		}
	}
	httputil.WriteResponse(ctx, resp)
}

// UserJobs handles GET /api/v1/users/{user_id}/broadcast
func (h *BroadcastHandler) UserJobs(ctx *fasthttp.RequestCtx) {
	userID, err := httputil.PathInt64(ctx, "user_id")
	if err != nil {
		h.badRequest(ctx, err.Error())
		return
	}

	resp := dto.UserBroadcastResponse{Jobs: []*dto.JobResponse{}}
	if accountID, ok := h.scheduler.RunningAccountForUser(userID); ok {
		resp.RunningAccountID = &accountID
	}
	for _, job := range h.scheduler.Jobs(userID) {
		resp.Jobs = append(resp.Jobs, dto.NewJobResponse(job))
	}
	httputil.WriteResponse(ctx, resp)
}

func (h *BroadcastHandler) userAndAccount(ctx *fasthttp.RequestCtx) (int64, int64, bool) {
	userID, err := httputil.PathInt64(ctx, "user_id")
	if err != nil {
		h.badRequest(ctx, err.Error())
		return 0, 0, false
	}
	accountID, err := httputil.PathInt64(ctx, "account_id")
	if err != nil {
		h.badRequest(ctx, err.Error())
		return 0, 0, false
	}
	return userID, accountID, true
}

func (h *BroadcastHandler) badRequest(ctx *fasthttp.RequestCtx, message string) {
	httputil.WriteResult(ctx, h.mapper, pkgerrors.WithCode(pkgerrors.CodeInvalidInput, pkgerrors.NewValidationError(message)))
}
