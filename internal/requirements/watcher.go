package requirements

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	gopsnet "github.com/shirou/gopsutil/v3/net"

	"offliner/internal/logger"
)

const (
	defaultPollInterval = 5 * time.Second

	// idleCPUThreshold is the total CPU percentage below which the host
	// counts as idle.
	idleCPUThreshold = 20.0

	// lowStorageUsedPercent is the cache-volume usage above which storage
	// counts as low.
	lowStorageUsedPercent = 95.0
)

// Watcher polls the host and reports which of a required set of
// preconditions are not met. The callback fires only when the not-met
// mask changes.
type Watcher struct {
	required  Flags
	storePath string
	interval  time.Duration

	// Probes are fields so tests can substitute deterministic ones.
	networkUp     func() bool
	unmeteredUp   func() bool
	charging      func() bool
	deviceIdle    func() bool
	storageNotLow func(path string) bool

	mu       sync.Mutex
	onChange func(Flags)
	lastMask Flags
	started  bool
	quit     chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher for the given required set. storePath is
// the cache volume checked by the storage probe.
func NewWatcher(required Flags, storePath string) *Watcher {
	return &Watcher{
		required:      required,
		storePath:     storePath,
		interval:      defaultPollInterval,
		networkUp:     probeNetworkUp,
		unmeteredUp:   probeNetworkUp, // no portable metering signal; follows network state
		charging:      probeCharging,
		deviceIdle:    probeDeviceIdle,
		storageNotLow: probeStorageNotLow,
	}
}

// Requirements returns the required set this watcher observes.
func (w *Watcher) Requirements() Flags {
	return w.required
}

// Start computes the current not-met mask, begins polling, and returns
// the initial mask. onChange is invoked with each subsequent mask until
// Stop is called.
func (w *Watcher) Start(onChange func(notMet Flags)) Flags {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return w.lastMask
	}
	w.started = true
	w.onChange = onChange
	w.lastMask = w.probe()
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	go w.poll()
	return w.lastMask
}

// Stop halts polling. No callback fires after Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.quit)
	done := w.done
	w.mu.Unlock()
	<-done
}

func (w *Watcher) poll() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mask := w.probe()
			w.mu.Lock()
			changed := mask != w.lastMask && w.started
			w.lastMask = mask
			cb := w.onChange
			w.mu.Unlock()
			if changed {
				logger.Log.Debug().Str("notMet", mask.String()).Msg("requirements changed")
				cb(mask)
			}
		case <-w.quit:
			return
		}
	}
}

// probe evaluates every required flag and returns the not-met subset.
func (w *Watcher) probe() Flags {
	var notMet Flags
	if w.required.Has(Network) && !w.networkUp() {
		notMet |= Network
	}
	if w.required.Has(UnmeteredNetwork) && !w.unmeteredUp() {
		notMet |= UnmeteredNetwork
	}
	if w.required.Has(Charging) && !w.charging() {
		notMet |= Charging
	}
	if w.required.Has(DeviceIdle) && !w.deviceIdle() {
		notMet |= DeviceIdle
	}
	if w.required.Has(StorageNotLow) && !w.storageNotLow(w.storePath) {
		notMet |= StorageNotLow
	}
	return notMet
}

func probeNetworkUp() bool {
	ifaces, err := gopsnet.Interfaces()
	if err != nil {
		logger.Log.Warn().Err(err).Msg("network probe failed")
		return true // fail open rather than stall every download
	}
	for _, iface := range ifaces {
		up, loopback := false, false
		for _, flag := range iface.Flags {
			switch flag {
			case "up":
				up = true
			case "loopback":
				loopback = true
			}
		}
		if up && !loopback && len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}

// probeCharging reads the power-supply state from sysfs. Hosts without a
// battery count as charging.
func probeCharging() bool {
	entries, err := os.ReadDir("/sys/class/power_supply")
	if err != nil {
		return true
	}
	sawBattery := false
	for _, e := range entries {
		statusPath := filepath.Join("/sys/class/power_supply", e.Name(), "status")
		data, err := os.ReadFile(statusPath)
		if err != nil {
			continue
		}
		sawBattery = true
		status := strings.TrimSpace(string(data))
		if status == "Charging" || status == "Full" {
			return true
		}
	}
	return !sawBattery
}

func probeDeviceIdle() bool {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return true
	}
	return percents[0] < idleCPUThreshold
}

func probeStorageNotLow(path string) bool {
	if path == "" {
		return true
	}
	usage, err := disk.Usage(path)
	if err != nil {
		// Path may not exist yet; don't block downloads over a probe error.
		return true
	}
	return usage.UsedPercent < lowStorageUsedPercent
}
