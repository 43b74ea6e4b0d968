package gateway

import "time"

type GatewayMeta struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"startTime"`
	Uptime    string    `json:"uptime"`
}

type ResponseModel struct {
	Meta  *GatewayMeta     `json:"meta,omitempty"`
	Cpus  []string         `json:"cpus,omitempty"`
	Mem   *MemUsageInfo    `json:"mem,omitempty"`
	Disks []*DiskUsageInfo `json:"disk,omitempty"`
}

type MemUsageInfo struct {
	Total       string
	Used        string
	UsedPercent string
}

type DiskUsageInfo struct {
	Path        string
	Total       string
	Used        string
	UsedPercent string
}

const gateway = "taglogger"
