// Package adapters hides the differences between pgxpool.Pool, sql.DB and sqlx.DB behind DBAdapter.
//
// All statements are sent with placeholders and separate arguments.
package adapters
