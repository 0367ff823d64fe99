package persist

import (
	"sync"
	"time"
)

// Scheduler 保存至多一个待执行的延迟调用；新的 Schedule 会取代尚未执行的调用。
type Scheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
	// running 在定时器触发的调用执行期间非空，调用结束时关闭。
	running chan struct{}
}

// Schedule 在 delay 之后执行 fn，取代之前尚未执行的调用。
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.pending = fn
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.gen != gen || s.pending == nil {
			s.mu.Unlock()
			return
		}
		run := s.pending
		s.pending = nil
		s.timer = nil
		done := make(chan struct{})
		s.running = done
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			if s.running == done {
				s.running = nil
			}
			s.mu.Unlock()
			close(done)
		}()
		run()
	})
}

// Cancel 取消尚未执行的调用，返回是否确实取消了一个调用。
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pending != nil
	s.stopLocked()
	return had
}

// Flush 先等待正在执行的调用结束，再立即执行尚未执行的调用（在调用方的 goroutine 中），
// 返回是否执行了待执行的调用。
func (s *Scheduler) Flush() bool {
	s.mu.Lock()
	run, running := s.pending, s.running
	s.stopLocked()
	s.mu.Unlock()
	if running != nil {
		<-running
	}
	if run == nil {
		return false
	}
	run()
	return true
}

// Pending 判断是否有尚未执行的调用。
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gen++
}
