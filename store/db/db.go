package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/store"
	"github.com/hrygo/lifesaver/store/db/memory"
	"github.com/hrygo/lifesaver/store/db/postgres"
	"github.com/hrygo/lifesaver/store/db/sqlite"
)

// ============================================================================
// DATABASE SUPPORT POLICY
// ============================================================================
// memory:   process-local, lost on restart. Default for demo mode and tests.
// sqlite:   single node deployments.
// postgres: production. Session updates lock the row for the turn commit.
// ============================================================================

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "memory", "":
		driver = memory.NewDB()
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: use memory, sqlite or postgres", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
