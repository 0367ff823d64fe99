package fonts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/go-fonts/latin-modern/lmroman10regular"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Default 是未指定字体族时使用的内置字体族。
const Default = "sans"

type face struct {
	regular []byte
	bold    []byte
}

var families = map[string]face{
	"sans":  {regular: goregular.TTF, bold: gobold.TTF},
	"serif": {regular: lmroman10regular.TTF, bold: lmroman10bold.TTF},
	"mono":  {regular: gomono.TTF, bold: gomonobold.TTF},
}

// Load 返回内置字体的字节数据。family 可带 "embed:" 前缀；style 含 bold 时返回粗体。
func Load(family, style string) ([]byte, error) {
	name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(family, "embed:")))
	if name == "" {
		name = Default
	}
	f, ok := families[name]
	if !ok {
		return nil, fmt.Errorf("未知的内置字体 %q（可选：%s）", name, strings.Join(Families(), ", "))
	}
	if strings.Contains(strings.ToLower(style), "bold") {
		return f.bold, nil
	}
	return f.regular, nil
}

// Has 判断是否为内置字体族。
func Has(family string) bool {
	_, ok := families[strings.ToLower(strings.TrimSpace(family))]
	return ok
}

// Families 返回全部内置字体族名称。
func Families() []string {
	out := make([]string, 0, len(families))
	for name := range families {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
