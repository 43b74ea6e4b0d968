package gateway

import (
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"net/http"
	"taglogger/pkg/apis"
	"taglogger/pkg/apis/response"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/gateway", getGateway(mgr))
	group.GET("/gateway/disk", getGatewayDisk(mgr))
}

func getGateway(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cpus, err := mgr.getGatewayCpu()
		if err != nil {
			klog.V(2).InfoS("Failed to get cpu usage", "err", err)
			c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrResourceUnavailable("cpu", err)))
			return
		}
		memory, err := mgr.getGatewayMem()
		if err != nil {
			klog.V(2).InfoS("Failed to get memory usage", "err", err)
			c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrResourceUnavailable("mem", err)))
			return
		}
		c.Header(apis.CacheControl, apis.NoCache)
		c.JSON(http.StatusOK, ResponseModel{Meta: mgr.GetGatewayMeta(), Cpus: cpus, Mem: memory})
	}
}

func getGatewayDisk(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		disks, err := mgr.getGatewayDisk()
		if err != nil {
			klog.V(2).InfoS("Failed to get disk usage", "err", err)
			c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrResourceUnavailable("disk", err)))
			return
		}
		c.Header(apis.CacheControl, apis.NoCache)
		c.JSON(http.StatusOK, ResponseModel{Disks: disks})
	}
}
