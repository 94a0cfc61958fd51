package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"awdw/internal/storage"
	"awdw/internal/storage/sqlstore"
)

// SQL Server is the native home of AdventureWorks, so this backend mostly
// serves as a source. It still supports every sink operation:
//   - Upserts are rendered as UPDATE; IF @@ROWCOUNT = 0 INSERT (no MERGE, which
//     has well-known concurrency caveats).
//   - Generated keys come back through OUTPUT INSERTED.<key>.
//   - Decimals are bound as text; the server converts them to the column type
//     without float rounding.

func init() {
	storage.Register("mssql", Open)
}

// Open connects with the "sqlserver" driver and validates connectivity.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mssql: missing dsn")
	}
	return sqlstore.Open(ctx, "sqlserver", cfg.DSN, Options())
}

// Options returns the sqlstore options for SQL Server.
func Options() sqlstore.Options {
	return sqlstore.Options{
		Name:        "mssql",
		Dialect:     Dialect{},
		Placeholder: storage.AtPPlaceholder,
		BindArg:     bindArg,
	}
}

func bindArg(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.String()
	case decimal.NullDecimal:
		if !t.Valid {
			return nil
		}
		return t.Decimal.String()
	default:
		return v
	}
}
