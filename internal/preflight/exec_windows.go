package preflight

import "os"

// Windows has no execute bit; existence is enough.
func isExecutable(info os.FileInfo) bool {
	return info.Mode().IsRegular()
}
