package postgres

const (
	notifyChannel = "documents"

	qGetForUpdate = `SELECT data FROM documents WHERE path = $1 FOR UPDATE`
	qGet          = `SELECT data FROM documents WHERE path = $1`
	qList         = `SELECT path, data FROM documents WHERE collection = $1 ORDER BY path`

	qSet = `
		INSERT INTO documents (path, collection, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (path) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`

	// слияние верхнего уровня, как у updateDoc: поля с null остаются со значением null
	qUpdate = `UPDATE documents SET data = data || $2::jsonb, updated_at = now() WHERE path = $1`
	qDelete = `DELETE FROM documents WHERE path = $1`
	qNotify = `SELECT pg_notify($1, $2)`
)
