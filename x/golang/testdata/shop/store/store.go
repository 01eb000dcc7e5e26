package store // import "example.com/shop/store"

// Base 公共字段
type Base struct {
	ID string
}

type DB struct {
	Base
	name string
}

type Saver interface {
	Save(key string) error
}

func (db *DB) Save(key string) error {
	return nil
}
