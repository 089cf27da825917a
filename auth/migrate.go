package auth

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/Brandon689/deskauth/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger routes goose output into the project logger.
type gooseLogger struct{ log logging.Logger }

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(context.Background(), fmt.Sprintf(format, v...), "component", "migrate")
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(context.Background(), fmt.Sprintf(format, v...), "component", "migrate")
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = goose.UpContext

func (s *store) migrate(ctx context.Context, log logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
