package db

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

type ConnectionStringer interface {
	ConnectionString() string
}

const (
	DriverSqlite   = "sqlite3"
	DriverLibsql   = "libsql"
	DriverPostgres = "postgres"
)

var connections map[string]*sqlx.DB = make(map[string]*sqlx.DB)
var lock sync.RWMutex

// DriverName picks the sql driver from the shape of the connection string.
// Anything that is not a postgres or libsql url is treated as a sqlite file path.
func DriverName(connStr string) string {
	lower := strings.ToLower(connStr)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(lower, "libsql://"),
		strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "ws://"),
		strings.HasPrefix(lower, "wss://"):
		return DriverLibsql
	default:
		return DriverSqlite
	}
}

func Open(connStringer ConnectionStringer) (*sqlx.DB, error) {
	connStr := connStringer.ConnectionString()
	lock.RLock()
	existingDb, ok := connections[connStr]
	lock.RUnlock()
	if ok {
		return existingDb, nil
	}

	lock.Lock()
	defer lock.Unlock()
	if existingDb, ok := connections[connStr]; ok {
		return existingDb, nil
	}
	driver := DriverName(connStr)
	db, err := sqlx.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if driver == DriverSqlite {
		// sqlite only supports one writer
		db.SetMaxOpenConns(1)
	}
	connections[connStr] = db
	return db, nil
}

func Close(connStringer ConnectionStringer) error {
	connStr := connStringer.ConnectionString()
	lock.Lock()
	defer lock.Unlock()
	db, ok := connections[connStr]
	if !ok {
		return nil
	}
	delete(connections, connStr)
	return db.Close()
}
