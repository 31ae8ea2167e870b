package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/appid"
)

func TestVersionHandlerReportsBuildAndAgent(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-10-01T12:00:00Z")
	SetAppIdentity(appid.Identity{BinaryName: "crawlpace-test"})
	SetCrawlerAgent("crawlpace-bot/1.0")
	t.Cleanup(func() {
		SetAppIdentity(appid.Get())
		SetCrawlerAgent("")
	})

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "crawlpace-test", resp.Name)
	require.Equal(t, BuildInfo{Version: "1.2.3", Commit: "abcd123", Date: "2026-10-01T12:00:00Z"}, resp.Build)
	require.Equal(t, "crawlpace-bot/1.0", resp.UserAgent)
	require.NotEmpty(t, resp.Libraries["gofulmen"])
	require.NotEmpty(t, resp.Libraries["crucible"])
}
