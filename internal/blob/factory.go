package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob.Store implementation using environment variables.
//
//	FLOORTRACK_BLOB_DRIVER: fs|s3|memory (default fs)
//	FLOORTRACK_BLOB_FS_ROOT: directory root when driver=fs (default ./backups)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FLOORTRACK_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	return OpenDriver(ctx, Driver(driver), os.Getenv("FLOORTRACK_BLOB_FS_ROOT"))
}

// OpenDriver constructs the named backend. S3 credentials and bucket still
// come from the environment; see s3.go.
func OpenDriver(ctx context.Context, driver Driver, fsRoot string) (Store, error) {
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(fsRoot)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
