package scan

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileInfo describes one comm.log found under the mission root. A mission
// directory is conventionally named after its vehicle (sg095, sg171, ...).
type FileInfo struct {
	Path       string
	MissionDir string
	GliderID   int    // 0 when the directory name carries no id
	HistoryLog string // path to an adjacent history.log, "" if absent
	Mtime      int64
	Size       int64
}

// ScanRoot walks the mission root looking for comm.log files, one per
// mission directory.
func ScanRoot(root string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if base == "plots" || strings.HasPrefix(base, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Base(path) != "comm.log" {
			return nil
		}
		dir := filepath.Dir(path)
		fi := FileInfo{
			Path:       path,
			MissionDir: dir,
			GliderID:   gliderID(dir),
			Mtime:      info.ModTime().Unix(),
			Size:       info.Size(),
		}
		if hist := filepath.Join(dir, "history.log"); fileExists(hist) {
			fi.HistoryLog = hist
		}
		files = append(files, fi)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return files, nil
}

func gliderID(dir string) int {
	base := filepath.Base(dir)
	if len(base) <= 2 || !strings.EqualFold(base[:2], "sg") {
		return 0
	}
	id, err := strconv.Atoi(base[2:])
	if err != nil {
		return 0
	}
	return id
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
