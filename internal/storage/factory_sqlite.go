//go:build sqlite

package storage

func newSQLiteStore(path string) (Store, error) {
	if path == "" {
		path = "armlog.db"
	}
	return NewSQLiteStore(path), nil
}
