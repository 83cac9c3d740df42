package supervisor

import (
	"os"
	"path/filepath"
)

// DiscoverRepoRoot walks upward from start at most maxLevels directories,
// looking for the first directory (start included) that contains a
// directory named markerDir. If none is found, start is returned unchanged.
func DiscoverRepoRoot(start, markerDir string, maxLevels int) string {
	dir := start
	for i := 0; i <= maxLevels; i++ {
		candidate := filepath.Join(dir, markerDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start
}
