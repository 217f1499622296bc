package repomanager

import (
	"context"
	"database/sql"

	"github.com/avelancourt/passguard/internal/dbx"
	"github.com/avelancourt/passguard/internal/server/repositories/codes"
	"github.com/avelancourt/passguard/internal/server/repositories/devices"
	"github.com/avelancourt/passguard/internal/server/repositories/sessions"
	"github.com/avelancourt/passguard/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Devices(db dbx.DBTX) devices.Repository
	Codes(db dbx.DBTX) codes.Repository
}
