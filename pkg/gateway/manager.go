package gateway

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"k8s.io/component-base/version"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"path/filepath"
	"sort"
	"strconv"
	"taglogger/pkg/utils/uuidutil"
	"time"
)

type Option func(*Manager)

// WithOutputFiles reports disk usage of the directories holding files.
func WithOutputFiles(files ...string) Option {
	return func(m *Manager) {
		seen := make(map[string]struct{}, len(m.dirs))
		for _, d := range m.dirs {
			seen[d] = struct{}{}
		}
		for _, f := range files {
			dir, err := filepath.Abs(filepath.Dir(f))
			if err != nil {
				dir = filepath.Dir(f)
			}
			if _, ok := seen[dir]; ok {
				continue
			}
			seen[dir] = struct{}{}
			m.dirs = append(m.dirs, dir)
		}
		sort.Strings(m.dirs)
	}
}

func WithClock(c clock.PassiveClock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// Manager describes the running logger process and its host.
type Manager struct {
	gatewayMeta *GatewayMeta
	dirs        []string
	clock       clock.PassiveClock
}

func NewGatewayManager(opts ...Option) *Manager {
	m := &Manager{
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.gatewayMeta = &GatewayMeta{
		Name:      gateway,
		ID:        uuidutil.UUID(),
		Version:   version.Get().GitVersion,
		StartTime: m.clock.Now(),
	}
	klog.V(3).InfoS("Gateway information created", "gatewayId", m.gatewayMeta.ID)
	return m
}

func (m *Manager) GetGatewayMeta() *GatewayMeta {
	meta := *m.gatewayMeta
	meta.Uptime = m.clock.Since(meta.StartTime).Round(time.Second).String()
	return &meta
}

func (m *Manager) Directories() []string {
	return m.dirs
}

func (m *Manager) getGatewayCpu() ([]string, error) {
	percents, err := cpu.Percent(0, true)
	if err != nil {
		return nil, err
	}
	cpus := make([]string, 0, len(percents))
	for _, p := range percents {
		cpus = append(cpus, formatPercent(p))
	}
	return cpus, nil
}

func (m *Manager) getGatewayMem() (*MemUsageInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	return &MemUsageInfo{
		Total:       strconv.FormatUint(vm.Total, 10),
		Used:        strconv.FormatUint(vm.Used, 10),
		UsedPercent: formatPercent(vm.UsedPercent),
	}, nil
}

func (m *Manager) getGatewayDisk() ([]*DiskUsageInfo, error) {
	disks := make([]*DiskUsageInfo, 0, len(m.dirs))
	for _, dir := range m.dirs {
		usage, err := disk.Usage(dir)
		if err != nil {
			return nil, err
		}
		disks = append(disks, &DiskUsageInfo{
			Path:        dir,
			Total:       strconv.FormatUint(usage.Total, 10),
			Used:        strconv.FormatUint(usage.Used, 10),
			UsedPercent: formatPercent(usage.UsedPercent),
		})
	}
	return disks, nil
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
