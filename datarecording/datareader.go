package datarecording

import (
	"database/sql"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteReader reads the records written by a SQLiteWriter.
type SQLiteReader struct {
	*sql.DB

	dbName string
}

// NewSQLiteReader creates a reader. Call Init before using it.
func NewSQLiteReader(path string) *SQLiteReader {
	r := &SQLiteReader{
		dbName: path,
	}

	return r
}

// Init establishes a connection to the database.
func (r *SQLiteReader) Init() {
	filename := r.dbName + ".sqlite3"

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	r.DB = db
}

// ListTables returns the names of all the tables in the database.
func (r *SQLiteReader) ListTables() []string {
	rows, err := r.Query(
		"SELECT name FROM sqlite_master WHERE type='table';")
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	tables := make([]string, 0)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			panic(err)
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		panic(err)
	}

	return tables
}
