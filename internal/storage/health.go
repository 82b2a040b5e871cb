package storage

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"
)

const probeFileSize = 1 << 20 // 1MB latency probe

// Health is a point-in-time snapshot of the storage mount backing a path.
type Health struct {
	Available    bool          `json:"available"`
	MountType    string        `json:"mount_type,omitempty"`
	TotalBytes   uint64        `json:"total_bytes"`
	UsedBytes    uint64        `json:"used_bytes"`
	FreeBytes    uint64        `json:"free_bytes"`
	ReadLatency  time.Duration `json:"read_latency"`
	WriteLatency time.Duration `json:"write_latency"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// UsedPercent returns disk usage as a percentage of total capacity.
func (h Health) UsedPercent() float64 {
	if h.TotalBytes == 0 {
		return 0
	}
	return float64(h.UsedBytes) / float64(h.TotalBytes) * 100
}

// Checker probes storage health on demand and caches the snapshot with a TTL
// so health endpoints do not hammer a possibly slow mount. Construct one at
// startup and pass it to whatever needs it.
type Checker struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	last   *Health
	lastAt time.Time

	group singleflight.Group
}

// NewChecker returns a Checker for path with the given cache TTL.
func NewChecker(path string, ttl time.Duration, logger *slog.Logger) *Checker {
	return &Checker{path: path, ttl: ttl, logger: logger}
}

// Check returns the storage health, re-probing when the cached snapshot is
// older than the TTL or force is set. Concurrent callers share one probe.
func (c *Checker) Check(force bool) Health {
	c.mu.Lock()
	if !force && c.last != nil && time.Since(c.lastAt) < c.ttl {
		cached := *c.last
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do("probe", func() (interface{}, error) {
		h := Probe(c.path, c.logger)

		c.mu.Lock()
		c.last = &h
		c.lastAt = time.Now()
		c.mu.Unlock()

		if !h.Available {
			c.logger.Warn("storage health check failed", "path", c.path, "error", h.Error)
		} else {
			c.logger.Debug("storage healthy",
				"path", c.path,
				"mountType", h.MountType,
				"freeBytes", h.FreeBytes,
			)
		}
		return h, nil
	})
	return v.(Health)
}

// Healthy reports whether storage is currently available, using the cache.
func (c *Checker) Healthy() bool {
	return c.Check(false).Available
}

// Probe performs a full health measurement of the storage behind path.
func Probe(path string, logger *slog.Logger) Health {
	h := Health{CheckedAt: time.Now()}

	if err := checkMountAvailable(path); err != nil {
		h.Error = err.Error()
		return h
	}
	h.Available = true
	h.MountType = detectMountType(path, logger)
	h.TotalBytes, h.UsedBytes, h.FreeBytes = diskUsage(path, logger)
	h.ReadLatency, h.WriteLatency = measureLatency(path, logger)
	return h
}

// checkMountAvailable verifies the path exists (creating it if needed), is a
// directory and is readable, writable and traversable.
func checkMountAvailable(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("cannot create storage directory: %w", err)
		}
		info, err = os.Stat(path)
		if err != nil {
			return fmt.Errorf("storage directory vanished after creation: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot stat storage path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("storage path is not a directory: %s", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("insufficient permissions for storage path %s: %w", path, err)
	}
	return nil
}

// detectMountType resolves the filesystem type for path by longest-prefix
// match against the live mount table. Returns "local" when no mount point
// matches, empty string when the table cannot be read.
func detectMountType(path string, logger *slog.Logger) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		logger.Warn("could not read mount table", "error", err)
		return ""
	}
	defer f.Close()

	bestLen := -1
	bestType := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if strings.HasPrefix(abs, mountPoint) && len(mountPoint) > bestLen {
			bestLen = len(mountPoint)
			bestType = fsType
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("could not scan mount table", "error", err)
		return ""
	}

	if bestLen < 0 {
		return "local"
	}
	return bestType
}

func diskUsage(path string, logger *slog.Logger) (total, used, free uint64) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		logger.Warn("could not get disk usage", "path", path, "error", err)
		return 0, 0, 0
	}
	bsize := uint64(st.Bsize)
	total = st.Blocks * bsize
	free = st.Bavail * bsize
	used = (st.Blocks - st.Bfree) * bsize
	return total, used, free
}

// measureLatency times a synchronous write and read of a small test file. The
// file is removed even when the probe fails part-way.
func measureLatency(path string, logger *slog.Logger) (read, write time.Duration) {
	probeFile := filepath.Join(path, fmt.Sprintf(".storage_healthcheck_%d", os.Getpid()))
	defer os.Remove(probeFile)

	data := make([]byte, probeFileSize)
	if _, err := rand.Read(data); err != nil {
		logger.Warn("latency probe failed to generate test data", "error", err)
		return 0, 0
	}

	start := time.Now()
	if err := os.WriteFile(probeFile, data, 0o600); err != nil {
		logger.Warn("latency probe write failed", "error", err)
		return 0, 0
	}
	write = time.Since(start)

	start = time.Now()
	if _, err := os.ReadFile(probeFile); err != nil {
		logger.Warn("latency probe read failed", "error", err)
		return 0, write
	}
	read = time.Since(start)

	return read, write
}

// VerifyOnStartup probes storage once and logs the outcome. It returns false
// when storage is unavailable so callers can decide whether to refuse to
// start.
func VerifyOnStartup(path string, logger *slog.Logger) bool {
	logger.Info("verifying storage", "path", path)

	h := Probe(path, logger)
	if !h.Available {
		logger.Error("storage unavailable", "path", path, "error", h.Error)
		return false
	}

	logger.Info("storage verified",
		"path", path,
		"mountType", h.MountType,
		"freeBytes", h.FreeBytes,
		"readLatency", h.ReadLatency.String(),
		"writeLatency", h.WriteLatency.String(),
	)
	return true
}
