package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open bootstraps the sqlite event archive. WAL mode lets the archive drain
// goroutine keep writing while the audit history endpoints read, and the
// busy timeout rides out checkpoint contention instead of surfacing
// SQLITE_BUSY to callers.
func Open(dbPath string) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	return db, nil
}
