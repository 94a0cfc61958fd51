// Package all links every storage backend into a binary.
package all

import (
	_ "awdw/internal/storage/mssql"
	_ "awdw/internal/storage/postgres"
	_ "awdw/internal/storage/sqlite"
)
