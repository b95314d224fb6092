// Package pg connects to PostgreSQL through a pgx pool and applies goose
// migrations from an fs.FS, typically the embedded internal/db filesystem.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, db.Migrations, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify driver errors for stores.
package pg
