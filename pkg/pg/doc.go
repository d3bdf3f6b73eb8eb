// Package pg connects to PostgreSQL with pgx/v5 and applies the embedded
// notifykit schema with goose.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
//
// The pool satisfies the DB interfaces of the analytics and templates
// Postgres stores. Healthcheck adapts it to an admin readiness check.
//
// Error helpers classify driver errors: IsNotFoundError, IsDuplicateKeyError
// and IsForeignKeyViolationError.
package pg
