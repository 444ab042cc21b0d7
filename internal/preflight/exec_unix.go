//go:build !windows

package preflight

import "os"

func isExecutable(info os.FileInfo) bool {
	return info.Mode().Perm()&0o111 != 0
}
