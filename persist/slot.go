package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Slot 是单键持久化存储，对应浏览器中的一个 localStorage 键。
type Slot interface {
	// Load 返回已保存的内容；不存在时 ok 为 false。
	Load(ctx context.Context) (data []byte, ok bool, err error)
	// Save 覆盖写入内容。
	Save(ctx context.Context, data []byte) error
}

// MemorySlot 把内容保存在内存中，适合测试与一次性命令。
type MemorySlot struct {
	mu    sync.Mutex
	data  []byte
	set   bool
	saves int
}

// NewMemorySlot 创建内存槽位，initial 非空时视为已有保存内容。
func NewMemorySlot(initial []byte) *MemorySlot {
	s := &MemorySlot{}
	if initial != nil {
		s.data = append([]byte(nil), initial...)
		s.set = true
	}
	return s
}

func (s *MemorySlot) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, false, nil
	}
	return append([]byte(nil), s.data...), true, nil
}

func (s *MemorySlot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.set = true
	s.saves++
	return nil
}

// Saves 返回累计写入次数。
func (s *MemorySlot) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FileSlot 把内容保存到单个文件，写入时先写临时文件再重命名。
type FileSlot struct {
	path string
}

// NewFileSlot 创建文件槽位。
func NewFileSlot(path string) (*FileSlot, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("slot path is required")
	}
	return &FileSlot{path: path}, nil
}

func (s *FileSlot) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read slot: %w", err)
	}
	return data, true, nil
}

func (s *FileSlot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create slot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write slot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace slot: %w", err)
	}
	return nil
}
