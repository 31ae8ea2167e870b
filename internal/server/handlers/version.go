package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/crawlpace/crawlpace/internal/appid"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"git_commit"`
	Date    string `json:"build_date"`
}

var (
	build       = BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"}
	appIdentity = appid.Get()
	// crawlerAgent is the User-Agent the pipeline presents to crawled sites.
	crawlerAgent string
)

// SetVersionInfo records the link-time build stamp.
func SetVersionInfo(version, commit, buildDate string) {
	build = BuildInfo{Version: version, Commit: commit, Date: buildDate}
}

// SetAppIdentity overrides the identity reported by /version.
func SetAppIdentity(identity appid.Identity) {
	appIdentity = identity
}

// SetCrawlerAgent publishes the configured crawler User-Agent on /version.
func SetCrawlerAgent(agent string) {
	crawlerAgent = agent
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Name      string            `json:"name"`
	Build     BuildInfo         `json:"build"`
	UserAgent string            `json:"user_agent,omitempty"`
	Go        string            `json:"go"`
	Platform  string            `json:"platform"`
	Libraries map[string]string `json:"libraries"`
}

// VersionHandler reports the build stamp and the identity crawled sites see.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	deps := crucible.GetVersion()
	writeJSON(w, http.StatusOK, VersionResponse{
		Name:      appIdentity.BinaryName,
		Build:     build,
		UserAgent: crawlerAgent,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Libraries: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
	})
}
