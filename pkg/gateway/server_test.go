package gateway

import (
	"encoding/json"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newRouter(mgr *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	InstallHandler(engine.Group("/api/v1"), mgr)
	return engine
}

func TestWithOutputFilesDeduplicatesDirectories(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	mgr := NewGatewayManager(WithOutputFiles(
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(other, "c.txt"),
	))
	assert.ElementsMatch(t, []string{dir, other}, mgr.Directories())
}

func TestGatewayMetaUptime(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	mgr := NewGatewayManager(WithClock(clk))
	clk.Step(90 * time.Second)

	meta := mgr.GetGatewayMeta()
	assert.Equal(t, "taglogger", meta.Name)
	assert.Len(t, meta.ID, 32)
	assert.Equal(t, "1m30s", meta.Uptime)
}

func TestGetGateway(t *testing.T) {
	engine := newRouter(NewGatewayManager())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/gateway", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got ResponseModel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Meta)
	require.NotNil(t, got.Mem)
	assert.NotEmpty(t, got.Mem.Total)
}

func TestGetGatewayDisk(t *testing.T) {
	dir := t.TempDir()
	engine := newRouter(NewGatewayManager(WithOutputFiles(filepath.Join(dir, "press.txt"))))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/gateway/disk", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got ResponseModel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Disks, 1)
	assert.Equal(t, dir, got.Disks[0].Path)
}

func TestGetGatewayDiskUnavailable(t *testing.T) {
	mgr := NewGatewayManager()
	mgr.dirs = []string{filepath.Join(t.TempDir(), "missing")}
	engine := newRouter(mgr)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/gateway/disk", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "10002")
}
