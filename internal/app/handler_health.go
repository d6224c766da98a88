package app

import (
	"net/http"
	"time"

	"github.com/sitegate/gatekeeper/internal/app/gateway"
)

type healthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	WAFEnabled bool   `json:"waf_enabled"`
}

func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	gateway.WriteJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		Uptime:     time.Since(a.startTime).Round(time.Second).String(),
		WAFEnabled: a.waf.Enabled(),
	})
}
