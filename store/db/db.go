// Package db selects the storage driver based on the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/sellwise/sellwise/internal/profile"
	"github.com/sellwise/sellwise/store"
	"github.com/sellwise/sellwise/store/db/memory"
	"github.com/sellwise/sellwise/store/db/sqlite"
)

// NewDriver creates a storage driver based on the profile. The memory driver
// is volatile and intended for dev/demo; sqlite persists across restarts.
func NewDriver(p *profile.Profile) (store.Driver, error) {
	switch p.Driver {
	case "memory", "":
		return memory.NewDB(), nil
	case "sqlite":
		driver, err := sqlite.NewDB(p.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open sqlite driver")
		}
		return driver, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q: only 'memory' and 'sqlite' are supported", p.Driver)
	}
}
