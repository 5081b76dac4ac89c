package metrics

import (
	"io/fs"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

var startedAt = time.Now()

// SysHealth is a snapshot of the process and of the data directory.
type SysHealth struct {
	AllocMB      uint64
	SysMB        uint64
	NumGC        uint32
	Goroutines   int
	Uptime       time.Duration
	DataFiles    int
	DataDiskSize string
}

// GetSysHealth reads the Go runtime stats and sums up dataDir, which holds
// the database and the local storage file.
func GetSysHealth(dataDir string) SysHealth {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	files, bytes := usage(dataDir)
	return SysHealth{
		AllocMB:      ms.Alloc >> 20,
		SysMB:        ms.Sys >> 20,
		NumGC:        ms.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		Uptime:       time.Since(startedAt).Round(time.Second),
		DataFiles:    files,
		DataDiskSize: humanize.IBytes(bytes),
	}
}

// usage counts regular files below root. Unreadable entries are skipped.
func usage(root string) (files int, bytes uint64) {
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			bytes += uint64(info.Size())
		}
		return nil
	})
	return files, bytes
}
