package card

// Allocator 发放卡片 ID，并记住已见过的最大 ID（包括恢复的卡片）。
type Allocator struct {
	counter int
}

// NewAllocator 以给定高水位创建分配器，负数按 0 处理。
func NewAllocator(counter int) *Allocator {
	a := &Allocator{}
	a.Reset(counter)
	return a
}

// Allocate 返回严格递增的新 ID。
func (a *Allocator) Allocate() int {
	a.counter++
	return a.counter
}

// Observe 在恢复已有卡片时调用，只推进高水位，不发放 ID。
func (a *Allocator) Observe(id int) {
	if id > a.counter {
		a.counter = id
	}
}

// Counter 返回当前高水位。
func (a *Allocator) Counter() int { return a.counter }

// Reset 直接设置高水位。
func (a *Allocator) Reset(counter int) {
	if counter < 0 {
		counter = 0
	}
	a.counter = counter
}
