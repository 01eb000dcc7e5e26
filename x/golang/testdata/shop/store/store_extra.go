package store // import "example.com/shop/store"

func (db *DB) Close() error {
	return nil
}

func Open(name string) *DB {
	return &DB{name: name}
}
