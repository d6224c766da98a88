package app

import (
	"net/http"
	"strconv"

	"github.com/sitegate/gatekeeper/internal/app/gateway"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
)

const defaultStatsLimit = 50

type securityStatsResponse struct {
	ports.SecurityStats
	BySeverity map[domain.Severity]int `json:"recent_by_severity"`
	WAFRules   int                     `json:"waf_rules"`
	WAFEnabled bool                    `json:"waf_enabled"`
}

// securityStatsHandler serves the sink snapshot. ?limit=N trims the recent
// events list, newest first.
func (a *Application) securityStatsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultStatsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			limit = n
		}
	}

	stats := a.sink.Stats()
	if len(stats.RecentEvents) > limit {
		stats.RecentEvents = stats.RecentEvents[:limit]
	}

	bySeverity := make(map[domain.Severity]int, 4)
	for _, e := range stats.RecentEvents {
		bySeverity[e.Severity]++
	}

	gateway.WriteJSON(w, http.StatusOK, securityStatsResponse{
		SecurityStats: stats,
		BySeverity:    bySeverity,
		WAFRules:      len(a.waf.Rules()),
		WAFEnabled:    a.waf.Enabled(),
	})
}
