package quota

import (
	"net/http"
	"strconv"

	"github.com/promptforge/promptforge/internal/api"
)

// Handler exposes the quota read endpoint.
type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// Check returns the caller's quota standing for their current local day.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user_id is required"))
		return
	}

	tier := TierFree
	if r.URL.Query().Get("account_type") == string(TierPro) {
		tier = TierPro
	}

	tzOffset := 0
	if v := r.URL.Query().Get("tz_offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("tz_offset must be an integer number of minutes"))
			return
		}
		tzOffset = n
	}

	api.JSON(w, http.StatusOK, h.ledger.CheckQuota(r.Context(), userID, tier, tzOffset))
}
