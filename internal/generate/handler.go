package generate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/promptforge/promptforge/internal/api"
	"github.com/promptforge/promptforge/internal/middleware"
	"github.com/promptforge/promptforge/internal/quota"
)

type Handler struct {
	svc      *Service
	ledger   *quota.Ledger
	validate *validator.Validate
}

func NewHandler(svc *Service, ledger *quota.Ledger) *Handler {
	return &Handler{
		svc:      svc,
		ledger:   ledger,
		validate: validator.New(),
	}
}

type generateRequest struct {
	Input                string            `json:"input" validate:"required,min=10"`
	FrameworkID          string            `json:"framework_id" validate:"required"`
	ClarificationAnswers map[string]string `json:"clarification_answers"`
	AttachmentContent    string            `json:"attachment_content"`
	UserID               string            `json:"user_id" validate:"required"`
	AccountType          string            `json:"account_type" validate:"omitempty,oneof=free pro"`
	TzOffset             int               `json:"tz_offset"`
	RequestID            string            `json:"request_id"`
}

type generateResponse struct {
	Output        string `json:"output"`
	FrameworkUsed string `json:"framework_used"`
	VersionID     string `json:"version_id"`
	VersionNumber string `json:"version_number"`
}

type quotaDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Quota   struct {
		Used      int    `json:"used"`
		Total     int    `json:"total"`
		ResetTime string `json:"reset_time"`
	} `json:"quota"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tier := quota.TierFree
	if req.AccountType == string(quota.TierPro) {
		tier = quota.TierPro
	}

	// Client retries carry their own request_id; otherwise the
	// per-request id stands in, so an unmarked call is its own
	// one-attempt request.
	requestID := req.RequestID
	if requestID == "" {
		requestID = middleware.GetRequestID(r.Context())
	}

	result, denial, err := h.svc.Generate(r.Context(), Params{
		UserID:               req.UserID,
		Tier:                 tier,
		TzOffsetMin:          req.TzOffset,
		RequestID:            requestID,
		Input:                req.Input,
		FrameworkID:          req.FrameworkID,
		ClarificationAnswers: req.ClarificationAnswers,
		AttachmentContent:    req.AttachmentContent,
	})
	if err != nil {
		slog.Error("generate request failed", "user_id", req.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	switch denial {
	case quota.DenialNone:
	case quota.DenialQuotaExhausted:
		status := h.ledger.CheckQuota(r.Context(), req.UserID, tier, req.TzOffset)
		d := quotaDetail{
			Code:    "QUOTA_EXCEEDED",
			Message: fmt.Sprintf("您已达到每日配额限制（%d次）", status.Total),
		}
		d.Quota.Used = status.Used
		d.Quota.Total = status.Total
		d.Quota.ResetTime = status.ResetTime.Format("2006-01-02T15:04:05Z07:00")
		api.JSONErrorDetail(w, http.StatusForbidden, d.Message, d)
		return
	case quota.DenialRetryLimit:
		api.JSONErrorDetail(w, http.StatusForbidden, "重试次数已达上限", map[string]string{
			"code":    "RETRY_LIMIT_EXCEEDED",
			"message": "重试次数已达上限",
		})
		return
	}

	api.JSON(w, http.StatusOK, generateResponse{
		Output:        result.Output,
		FrameworkUsed: result.FrameworkUsed,
		VersionID:     result.VersionID,
		VersionNumber: result.VersionNumber,
	})
}
