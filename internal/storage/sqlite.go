package storage

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// NewSQLite abre (o crea) la base de datos en path y aplica el esquema.
// Usa el driver pure Go modernc.org/sqlite; no requiere cgo.
func NewSQLite(path string) (Store, error) {
	if path == "" {
		path = "agriqnet.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Una sola conexión: las escrituras se serializan y ":memory:" comparte estado.
	db.SetMaxOpenConns(1)

	// WAL para que las lecturas del broadcaster no bloqueen altas.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, err
	}

	s, err := newSQLStore(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
