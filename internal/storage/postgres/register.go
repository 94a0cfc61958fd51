package postgres

import "awdw/internal/storage"

func init() {
	// registers the postgres backend factory
	storage.Register("postgres", Open)
}
