package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"coursedrop/internal/config"
	"coursedrop/internal/mirror"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckMirror verifies the object storage endpoint answers with the
// configured credentials. It uses a 5-second timeout and a single attempt.
func CheckMirror(ctx context.Context, cfg *config.Config) Result {
	const name = "Mirror"

	m, err := mirror.NewS3(cfg.Mirror)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.Ping(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	if !exists {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %s will be created on first upload", m.Bucket())}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %s reachable", m.Bucket())}
}

func joinYear(root, year string) string {
	return filepath.Join(root, year)
}
