package facts

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"awdw/internal/storage"
)

// DefaultBatchSize is used when Loader.BatchSize is not positive.
const DefaultBatchSize = 1000

// Loader extracts facts from Source and appends them to Sink.
type Loader struct {
	Source storage.Querier
	Sink   storage.Store

	// Schema qualifies every warehouse table.
	Schema string

	// BatchSize is the number of sales lines committed per transaction.
	BatchSize int

	Logger *zap.Logger
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Loader) batchSize() int {
	if l.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return l.BatchSize
}

func (l *Loader) table(name string) string {
	return storage.Qualify(l.Schema, name)
}

func (l *Loader) insertStmt(table string, cols []string) string {
	return storage.BuildInsert(l.Sink.Dialect().Ident, l.table(table), cols)
}

func optionalTime(v any) *time.Time {
	t, ok := storage.AsTime(v)
	if !ok {
		return nil
	}
	return &t
}

func decimalOrZero(r storage.Row, col string) decimal.Decimal {
	d, _ := r.Decimal(col)
	return d
}
