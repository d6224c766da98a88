package router

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/sitegate/gatekeeper/internal/logger"
)

type RouteInfo struct {
	Handler     http.Handler
	Description string
	Method      string
	Order       int
	Protected   bool
}

// RouteRegistry collects routes before they are bound to a mux so the
// startup log can show them as one table.
type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   *logger.StyledLogger
	orderSeq int
}

func NewRouteRegistry(logger *logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes: make(map[string]RouteInfo),
		logger: logger,
	}
}

// Register adds an internal route that bypasses the security pipeline.
func (r *RouteRegistry) Register(route string, handler http.Handler, description, method string) {
	r.register(route, handler, description, method, false)
}

// RegisterProtected adds a route whose handler is already wrapped by the
// gateway.
func (r *RouteRegistry) RegisterProtected(route string, handler http.Handler, description, method string) {
	r.register(route, handler, description, method, true)
}

func (r *RouteRegistry) register(route string, handler http.Handler, description, method string, protected bool) {
	r.routes[route] = RouteInfo{
		Handler:     handler,
		Description: description,
		Method:      method,
		Order:       r.orderSeq,
		Protected:   protected,
	}
	r.orderSeq++
}

func (r *RouteRegistry) WireUp(mux *http.ServeMux) {
	for route, info := range r.routes {
		mux.Handle(route, info.Handler)
	}
	r.logRoutesTable()
}

func (r *RouteRegistry) GetRoutes() map[string]RouteInfo {
	return r.routes
}

func (r *RouteRegistry) logRoutesTable() {
	if len(r.routes) == 0 || r.logger == nil {
		return
	}

	type routeEntry struct {
		path      string
		method    string
		desc      string
		order     int
		protected bool
	}

	entries := make([]routeEntry, 0, len(r.routes))
	for route, info := range r.routes {
		entries = append(entries, routeEntry{
			path:      route,
			method:    info.Method,
			desc:      info.Description,
			order:     info.Order,
			protected: info.Protected,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	tableData := [][]string{
		{"ROUTE", "METHOD", "GATEWAY", "DESCRIPTION"},
	}
	for _, entry := range entries {
		gateway := "-"
		if entry.protected {
			gateway = "yes"
		}
		tableData = append(tableData, []string{entry.path, entry.method, gateway, entry.desc})
	}

	r.logger.InfoWithCount("Registered web routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}
