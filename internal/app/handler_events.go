package app

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sitegate/gatekeeper/internal/app/gateway"
	"github.com/sitegate/gatekeeper/internal/core/domain"
)

const (
	eventStreamContentType = "text/event-stream"
	eventStreamKeepAlive   = 15 * time.Second
)

// securityEventsHandler streams security events as server-sent events
// until the client goes away or the sink shuts down.
// ?min_severity=high drops anything below that severity.
func (a *Application) securityEventsHandler(w http.ResponseWriter, r *http.Request) {
	minWeight := 0
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		sev := domain.Severity(raw)
		if !sev.IsValid() {
			gateway.WriteError(w, domain.ErrValidation.WithMessage("Unknown severity "+raw), "", time.Now())
			return
		}
		minWeight = sev.Weight()
	}

	rc := http.NewResponseController(w)
	// the server write timeout would otherwise cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := a.sink.Subscribe(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", eventStreamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": subscribed\n\n"))
	if err := rc.Flush(); err != nil {
		a.logger.Warn("Event stream does not support flushing", "error", err)
		return
	}

	keepAlive := time.NewTicker(eventStreamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Severity.Weight() < minWeight {
				continue
			}
			payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
			if err != nil {
				a.logger.Warn("Failed to encode security event", "type", event.Type, "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
