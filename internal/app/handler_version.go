package app

import (
	"net/http"
	"runtime"

	"github.com/sitegate/gatekeeper/internal/app/gateway"
	"github.com/sitegate/gatekeeper/internal/version"
)

type VersionResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Build       BuildInfo         `json:"build"`
	Links       map[string]string `json:"links"`
}

type BuildInfo struct {
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func (a *Application) versionHandler(w http.ResponseWriter, r *http.Request) {
	gateway.WriteJSON(w, http.StatusOK, VersionResponse{
		Name:        version.Name,
		Version:     version.Version,
		Description: version.Description,
		Build: BuildInfo{
			Commit:    version.Commit,
			Date:      version.Date,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		Links: map[string]string{
			"homepage": version.GithubHomeUri,
			"releases": version.GithubLatestUri,
		},
	})
}
