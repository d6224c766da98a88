package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/sitegate/gatekeeper/theme"
)

var (
	Name        = "gatekeeper"
	Authors     = "SiteGate Engineering"
	Description = "Request security gateway for the SiteGate API"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/sitegate/gatekeeper"
	GithubHomeUri   = "https://github.com/sitegate/gatekeeper"
	GithubLatestUri = "https://github.com/sitegate/gatekeeper/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔──────────────────────────────────────────────╗
│   ┏━╸┏━┓╺┳╸┏━╸╻┏ ┏━╸┏━╸┏━┓┏━╸┏━┓    ┏━━━┓     │
│   ┃╺┓┣━┫ ┃ ┣╸ ┣┻┓┣╸ ┣╸ ┣━┛┣╸ ┣┳┛    ┃ ◉ ┃     │
│   ┗━┛╹ ╹ ╹ ┗━╸╹ ╹┗━╸┗━╸╹  ┗━╸╹┗╸    ┗━┳━┛     │` + "\n"))

	b.WriteString(theme.ColourSplash("│   "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(" ")
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(theme.ColourSplash(fmt.Sprintf("%*s│\n", max(1, 12-len(Version)), "")))
	b.WriteString(theme.ColourSplash("╚──────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
