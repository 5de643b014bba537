package store

import (
	"fmt"
)

// OpenPersister returns the persister for backend ("json" or "sqlite") and a
// close function for it.
func OpenPersister(backend, jsonPath, sqlitePath string) (Persister, func() error, error) {
	switch backend {
	case "", "json":
		return NewJSONPersister(jsonPath), func() error { return nil }, nil
	case "sqlite":
		p, err := NewSQLitePersister(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
