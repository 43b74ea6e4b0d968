package collector

import (
	"github.com/gin-gonic/gin"
	"net/http"
	"taglogger/pkg/apis"
	"taglogger/pkg/apis/response"
	"taglogger/pkg/device"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/devices", listDevices(mgr))
	group.GET("/devices/:name", getDevice(mgr))
}

func listDevices(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := c.Query(apis.State)
		devices := mgr.ListDevices()
		if len(state) > 0 {
			filtered := make([]*device.Status, 0, len(devices))
			for _, d := range devices {
				if d.State == state {
					filtered = append(filtered, d)
				}
			}
			devices = filtered
		}
		c.Header(apis.CacheControl, apis.NoCache)
		c.JSON(http.StatusOK, devices)
	}
}

func getDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		d, ok := mgr.GetDevice(name)
		if !ok {
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound(name)))
			return
		}
		c.Header(apis.CacheControl, apis.NoCache)
		c.JSON(http.StatusOK, d)
	}
}
