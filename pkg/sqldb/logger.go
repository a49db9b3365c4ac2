package sqldb

import (
	"context"

	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/yusufsyaifudin/ylog"
)

// QueryLogger writes every ledger statement through ylog when the ledger runs with debug on.
// Failed statements surface as errors, the rest stays at debug level.
type QueryLogger struct {
	Driver Driver
}

func (q *QueryLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	if level == sqldblogger.LevelError {
		ylog.Error(ctx, "ledger sql: "+msg, ylog.KV("driver", q.Driver.String()), ylog.KV("sql", data))
		return
	}

	ylog.Debug(ctx, "ledger sql: "+msg, ylog.KV("driver", q.Driver.String()), ylog.KV("sql", data))
}

var _ sqldblogger.Logger = (*QueryLogger)(nil)
