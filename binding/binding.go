package binding

// Side 标识一个字段的观察者：编辑控件或预览视图。
type Side int

const (
	SideControl Side = iota
	SidePreview
)

func (s Side) String() string {
	switch s {
	case SideControl:
		return "control"
	case SidePreview:
		return "preview"
	default:
		return "unknown"
	}
}

type observer struct {
	last  string
	apply func(string)
}

// Field 持有一个权威文本值，并把变化同步给两侧视图。
// 观察者只有在收到的值与它上一次写入的值不同时才会被调用，避免互相回写。
type Field struct {
	value     string
	observers map[Side]*observer
	onChange  func(string)
}

// NewField 创建字段，onChange 在权威值变化时调用（可为 nil）。
func NewField(initial string, onChange func(string)) *Field {
	return &Field{
		value:     initial,
		observers: map[Side]*observer{},
		onChange:  onChange,
	}
}

// Bind 注册一侧的观察者，并立即推送当前值。
func (f *Field) Bind(side Side, apply func(string)) {
	o := &observer{apply: apply, last: f.value}
	f.observers[side] = o
	if apply != nil {
		apply(f.value)
	}
}

// Set 处理来自 from 一侧的编辑，返回权威值是否发生变化。
func (f *Field) Set(from Side, v string) bool {
	if o, ok := f.observers[from]; ok {
		o.last = v
	}
	if v == f.value {
		return false
	}
	f.value = v
	if f.onChange != nil {
		f.onChange(v)
	}
	f.push(from)
	return true
}

// Sync 在权威值被外部修改（例如全局样式批量覆盖）后同步到所有观察者。
func (f *Field) Sync(v string) bool {
	if v == f.value {
		return false
	}
	f.value = v
	f.push(-1)
	return true
}

func (f *Field) push(skip Side) {
	for side, o := range f.observers {
		if side == skip || o.last == f.value {
			continue
		}
		o.last = f.value
		if o.apply != nil {
			o.apply(f.value)
		}
	}
}
