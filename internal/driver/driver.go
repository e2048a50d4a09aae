// Package driver implements the per-kind connection strategies behind the
// uniform Adapter/Handle capability set. The registry and executor never
// reference a concrete kind; adding an engine means adding a file here and
// an entry in All, nothing else.
package driver

import (
	"dbgateway/internal/core"
)

// All returns one adapter per supported kind. The set is fixed at compile
// time; runtime registration is deliberately not offered.
func All() map[core.Kind]core.Adapter {
	return map[core.Kind]core.Adapter{
		core.KindPostgres: &postgresAdapter{},
		core.KindMySQL:    &mysqlAdapter{},
		core.KindSQLite:   &sqliteAdapter{},
		core.KindDocument: &documentAdapter{},
	}
}
