package service // import "example.com/shop/service"

import (
	"fmt"

	"example.com/shop/store"
)

// OrderService 订单服务
type OrderService struct {
	store.Base
	db    *store.DB
	count int
}

func NewOrderService(db *store.DB) *OrderService {
	return &OrderService{db: db}
}

func (s *OrderService) Place(id string) error {
	s.count++
	if err := s.db.Save(id); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	log(id)
	return nil
}

func log(msg string) {
	fmt.Println(msg)
}
