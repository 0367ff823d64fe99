package card

import (
	"errors"
	"fmt"
)

var (
	ErrCardNotFound = errors.New("card not found")
	ErrDuplicateID  = errors.New("duplicate card id")
	ErrInvalidOrder = errors.New("invalid card order")
	ErrInvalidCard  = errors.New("invalid card")
)

// Store 保存所有卡片记录，按容器维护显示顺序（即用户拖拽后的顺序）。
type Store struct {
	cards  map[int]*Card
	single []int
	dual   []int
}

// NewStore 创建空的卡片仓库。
func NewStore() *Store {
	return &Store{cards: map[int]*Card{}}
}

// Add 将卡片追加到其容器末尾。
func (s *Store) Add(c Card) error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidCard, c.ID)
	}
	if _, ok := s.cards[c.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, c.ID)
	}
	switch c.Column {
	case ColumnSingle:
		s.single = append(s.single, c.ID)
	case ColumnDual:
		s.dual = append(s.dual, c.ID)
	default:
		return fmt.Errorf("%w: unknown column %q", ErrInvalidCard, c.Column)
	}
	cp := c
	s.cards[c.ID] = &cp
	return nil
}

// Get 返回卡片副本。
func (s *Store) Get(id int) (Card, bool) {
	c, ok := s.cards[id]
	if !ok {
		return Card{}, false
	}
	return *c, true
}

// Update 在原地修改卡片；fn 不能修改 ID 与 Column。
func (s *Store) Update(id int, fn func(*Card)) (Card, error) {
	c, ok := s.cards[id]
	if !ok {
		return Card{}, fmt.Errorf("%w: %d", ErrCardNotFound, id)
	}
	cp := *c
	fn(&cp)
	cp.ID = c.ID
	cp.Column = c.Column
	*c = cp
	return cp, nil
}

// Delete 删除卡片并返回被删除的记录。
func (s *Store) Delete(id int) (Card, error) {
	c, ok := s.cards[id]
	if !ok {
		return Card{}, fmt.Errorf("%w: %d", ErrCardNotFound, id)
	}
	delete(s.cards, id)
	if c.Column == ColumnSingle {
		s.single = removeID(s.single, id)
	} else {
		s.dual = removeID(s.dual, id)
	}
	return *c, nil
}

// Reorder 用新的 ID 顺序替换某个容器的顺序，ids 必须是原顺序的一个排列。
func (s *Store) Reorder(column Column, ids []int) error {
	current := s.order(column)
	if current == nil {
		return fmt.Errorf("%w: unknown column %q", ErrInvalidOrder, column)
	}
	if len(ids) != len(*current) {
		return fmt.Errorf("%w: expected %d ids, got %d", ErrInvalidOrder, len(*current), len(ids))
	}
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		c, ok := s.cards[id]
		if !ok || c.Column != column {
			return fmt.Errorf("%w: card %d is not in %s column", ErrInvalidOrder, id, column)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: card %d repeated", ErrInvalidOrder, id)
		}
		seen[id] = struct{}{}
	}
	*current = append([]int(nil), ids...)
	return nil
}

// Cards 返回某个容器内按显示顺序排列的卡片副本。
func (s *Store) Cards(column Column) []Card {
	order := s.order(column)
	if order == nil {
		return nil
	}
	out := make([]Card, 0, len(*order))
	for _, id := range *order {
		out = append(out, *s.cards[id])
	}
	return out
}

// IDs 返回某个容器的 ID 顺序。
func (s *Store) IDs(column Column) []int {
	order := s.order(column)
	if order == nil {
		return nil
	}
	return append([]int(nil), (*order)...)
}

// All 按“单列容器、双列容器”的显示顺序返回全部卡片。
func (s *Store) All() []Card {
	out := s.Cards(ColumnSingle)
	return append(out, s.Cards(ColumnDual)...)
}

// Len 返回卡片总数。
func (s *Store) Len() int { return len(s.cards) }

// Clear 清空所有卡片。
func (s *Store) Clear() {
	s.cards = map[int]*Card{}
	s.single = nil
	s.dual = nil
}

func (s *Store) order(column Column) *[]int {
	switch column {
	case ColumnSingle:
		return &s.single
	case ColumnDual:
		return &s.dual
	default:
		return nil
	}
}

func removeID(ids []int, id int) []int {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
