package persist

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultDelay 是文本类编辑的自动保存防抖时长。
const DefaultDelay = 500 * time.Millisecond

// SnapshotFunc 在保存时生成要写入的内容及其版本号。版本号随每次修改递增。
type SnapshotFunc func() (data []byte, rev uint64, err error)

// Autosaver 把编辑器状态写入槽位：文本类编辑经过防抖，结构性操作立即写入。
type Autosaver struct {
	slot     Slot
	delay    time.Duration
	snapshot SnapshotFunc
	logger   *log.Logger
	sched    Scheduler

	mu      sync.Mutex
	lastErr error
	writes  int
	// lastRev 是已写入内容的最大版本号，较旧的快照不会覆盖较新的内容。
	lastRev uint64
	written bool
}

// NewAutosaver 创建自动保存器。delay<=0 时使用 DefaultDelay，logger 为空时丢弃日志。
func NewAutosaver(slot Slot, delay time.Duration, snapshot SnapshotFunc, logger *log.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Autosaver{slot: slot, delay: delay, snapshot: snapshot, logger: logger}
}

// Touch 请求一次防抖保存：delay 内的多次 Touch 只触发一次写入。
func (a *Autosaver) Touch() {
	a.sched.Schedule(a.delay, func() {
		a.saveSnapshot(context.Background())
	})
}

// SaveNow 取消待执行的防抖保存并立即写入版本为 rev 的 data。
func (a *Autosaver) SaveNow(ctx context.Context, data []byte, rev uint64) error {
	a.sched.Cancel()
	return a.write(ctx, data, rev)
}

// Flush 立即执行尚未执行的防抖保存。调用方不能持有 snapshot 需要的锁。
func (a *Autosaver) Flush() bool {
	return a.sched.Flush()
}

// Cancel 丢弃尚未执行的防抖保存。
func (a *Autosaver) Cancel() bool {
	return a.sched.Cancel()
}

// Pending 判断是否有尚未执行的防抖保存。
func (a *Autosaver) Pending() bool {
	return a.sched.Pending()
}

// LastError 返回最近一次写入的错误。
func (a *Autosaver) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Writes 返回成功写入的次数。
func (a *Autosaver) Writes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writes
}

func (a *Autosaver) saveSnapshot(ctx context.Context) {
	data, rev, err := a.snapshot()
	if err != nil {
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		a.logger.Error("autosave snapshot failed", "err", err)
		return
	}
	_ = a.write(ctx, data, rev)
}

func (a *Autosaver) write(ctx context.Context, data []byte, rev uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.written && rev < a.lastRev {
		a.logger.Debug("skip stale snapshot", "rev", rev, "saved", a.lastRev)
		return nil
	}
	if err := a.slot.Save(ctx, data); err != nil {
		a.lastErr = err
		a.logger.Error("autosave failed", "err", err)
		return err
	}
	a.lastErr = nil
	a.lastRev = rev
	a.written = true
	a.writes++
	a.logger.Debug("state saved", "rev", rev, "bytes", len(data))
	return nil
}
