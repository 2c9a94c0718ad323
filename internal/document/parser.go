package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// LayoutReader 版面读取器接口
// 负责把文档解析为带字体信息的页面块
type LayoutReader interface {
	// ReadLayout 读取文档的全部页面
	// 文档无法打开时返回*OpenError
	ReadLayout(ctx context.Context, filePath string) ([]Page, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ErrUnsupportedType 不支持的文档类型
var ErrUnsupportedType = errors.New("unsupported document type")

// ReaderFactory 根据文件类型创建对应的版面读取器
func ReaderFactory(filePath string, opts ...ReaderOption) (LayoutReader, error) {
	switch detectContentType(filePath) {
	case PDF:
		return NewPDFLayoutReader(opts...), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(filePath string) ContentType {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return PDF
	default:
		return Unknown
	}
}

// TextRun 同一字体同一位置的一段文字
type TextRun struct {
	Text     string  // 文字内容
	FontName string  // 字体名称，去掉了子集前缀
	FontSize float64 // 有效字号（已应用文本矩阵）
	X        float64 // 基线起点横坐标
	Y        float64 // 基线纵坐标，自下而上递增

	EndX       float64 // 字形推进后的终点横坐标，未知时不大于X
	SpaceWidth float64 // 当前字体空格宽度，字体缺少宽度表时为0
}

// spaceGapRatio 相邻文字段间距达到空格宽度的该比例时视为词间空格
const spaceGapRatio = 0.5

// fallbackSpaceEm 字体没有宽度表时按字号估计空格宽度
const fallbackSpaceEm = 0.25

// spaceBefore 判断next与r之间是否缺少一个空格
func (r TextRun) spaceBefore(next TextRun) bool {
	if strings.HasSuffix(r.Text, " ") || strings.HasPrefix(next.Text, " ") {
		return false
	}
	end := r.EndX
	if end < r.X {
		end = r.X
	}
	width := r.SpaceWidth
	if width <= 0 {
		width = fallbackSpaceEm * r.FontSize
	}
	gap := next.X - end
	return gap > 0 && gap >= spaceGapRatio*width
}

// Line 同一基线上的文字段
type Line struct {
	Runs []TextRun
}

// Join 以sep拼接行内文字段
func (l Line) Join(sep string) string {
	parts := make([]string, len(l.Runs))
	for i, r := range l.Runs {
		parts[i] = r.Text
	}
	return strings.Join(parts, sep)
}

// Text 行文本：按文字段间距补回被拆开的词间空格
func (l Line) Text() string {
	var b strings.Builder
	for i, r := range l.Runs {
		if i > 0 && l.Runs[i-1].spaceBefore(r) {
			b.WriteByte(' ')
		}
		b.WriteString(r.Text)
	}
	return b.String()
}

// Block 页面中的文本块
type Block struct {
	Lines []Line
}

// Text 块文本：行内按间距拼接，行间以空格拼接
func (b Block) Text() string {
	return joinLines(b.Lines)
}

func joinLines(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text()
	}
	return strings.Join(parts, " ")
}

// Page 一页的文本块
type Page struct {
	Number int     // 页码，从1开始
	Blocks []Block // 按内容流顺序排列的文本块
}

// OpenError 文档无法打开或解析
type OpenError struct {
	Path string
	Err  error
}

// Error 实现error接口
func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open %s: %v", filepath.Base(e.Path), e.Err)
}

// Unwrap 返回底层错误
func (e *OpenError) Unwrap() error {
	return e.Err
}
