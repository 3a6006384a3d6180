package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// retryDelay is the pause before the single retry of a failed open.
var retryDelay = 200 * time.Millisecond

// Open creates dir if needed and opens the store selected by driver. A
// failed open is retried once; a second failure is reported as
// common.ErrStorageUnavailable.
func Open(ctx context.Context, driver, dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", common.ErrStorageUnavailable, dir, err)
	}

	open := func() (Store, error) {
		switch driver {
		case DriverSQLite, "":
			return OpenSQLite(ctx, filepath.Join(dir, "vault.db"))
		case DriverBolt:
			return OpenBolt(filepath.Join(dir, "vault.bolt"))
		default:
			return nil, fmt.Errorf("unknown storage driver %q", driver)
		}
	}

	store, err := open()
	if err == nil {
		return store, nil
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, ctx.Err())
	case <-time.After(retryDelay):
	}

	store, err = open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return store, nil
}
