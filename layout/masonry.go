package layout

import "fmt"

// DefaultGap 是双列瀑布流中卡片之间的固定间距（px）。
const DefaultGap = 15.0

// HeightFunc 在卡片宽度确定之后测量第 i 张卡片的高度。
type HeightFunc func(i int, width float64) (float64, error)

// Placement 是单张卡片在双列容器内的位置。
type Placement struct {
	Index  int     `json:"index"`
	Column int     `json:"column"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MasonryResult 是一次瀑布流计算的结果。
type MasonryResult struct {
	ContainerWidth float64     `json:"containerWidth"`
	ColumnWidth    float64     `json:"columnWidth"`
	Gap            float64     `json:"gap"`
	Placements     []Placement `json:"placements"`
	Columns        [2]float64  `json:"columns"`
	Height         float64     `json:"height"`
}

// Masonry 把 n 张卡片按顺序放入两列：每张卡片进入当前较矮的一列（相等时取第 0 列）。
// 所有卡片先统一设置为列宽，再调用 measure 测量高度，因为文字折行会随宽度改变高度。
// width 为 0（容器尚不可测量）时返回 ok=false，调用方应保留之前的位置。
func Masonry(width, gap float64, n int, measure HeightFunc) (MasonryResult, bool, error) {
	if width <= 0 {
		return MasonryResult{}, false, nil
	}
	if gap < 0 {
		gap = 0
	}
	colWidth := (width - gap) / 2
	res := MasonryResult{
		ContainerWidth: width,
		ColumnWidth:    colWidth,
		Gap:            gap,
		Placements:     make([]Placement, 0, n),
	}
	for i := 0; i < n; i++ {
		h, err := measure(i, colWidth)
		if err != nil {
			return MasonryResult{}, false, fmt.Errorf("测量第 %d 张卡片失败: %w", i, err)
		}
		if h < 0 {
			h = 0
		}
		col := 0
		if res.Columns[1] < res.Columns[0] {
			col = 1
		}
		res.Placements = append(res.Placements, Placement{
			Index:  i,
			Column: col,
			X:      float64(col) * (colWidth + gap),
			Y:      res.Columns[col],
			Width:  colWidth,
			Height: h,
		})
		res.Columns[col] += h + gap
	}
	res.Height = maxColumn(res.Columns)
	return res, true, nil
}

// MasonryHeights 是 Masonry 的便捷形式：高度已预先测量好。
func MasonryHeights(heights []float64, width, gap float64) (MasonryResult, bool) {
	res, ok, _ := Masonry(width, gap, len(heights), func(i int, _ float64) (float64, error) {
		return heights[i], nil
	})
	return res, ok
}

func maxColumn(cols [2]float64) float64 {
	if cols[0] >= cols[1] {
		return cols[0]
	}
	return cols[1]
}
