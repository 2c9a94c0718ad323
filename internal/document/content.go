package document

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// tjSpaceThreshold TJ数组中小于该值（千分之一字号）的位移视为词间空格
const tjSpaceThreshold = -200

// matrix PDF仿射变换矩阵
type matrix [3][3]float64

var identity = matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func (x matrix) mul(y matrix) matrix {
	var z matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				z[i][j] += x[i][k] * y[k][j]
			}
		}
	}
	return z
}

func translate(tx, ty float64) matrix {
	return matrix{{1, 0, 0}, {0, 1, 0}, {tx, ty, 1}}
}

func matrixFromArgs(args []pdf.Value) matrix {
	var m matrix
	for i := 0; i < 6; i++ {
		m[i/2][i%2] = args[i].Float64()
	}
	m[2][2] = 1
	return m
}

// graphicsState 内容流解释过程中的图形与文本状态
type graphicsState struct {
	ctm       matrix
	tm        matrix
	tlm       matrix
	font      pdf.Font
	fontName  string
	enc       pdf.TextEncoding
	size      float64
	leading   float64
	charSpace float64
	wordSpace float64
	scale     float64
	rise      float64
}

// contentInterpreter 把页面内容流转换为文字段
type contentInterpreter struct {
	page  pdf.Page
	fonts map[string]pdf.Font
	g     graphicsState
	stack []graphicsState
	runs  []TextRun
}

func newContentInterpreter(page pdf.Page) *contentInterpreter {
	return &contentInterpreter{
		page:  page,
		fonts: make(map[string]pdf.Font),
		g: graphicsState{
			ctm:   identity,
			tm:    identity,
			tlm:   identity,
			scale: 1,
		},
	}
}

// collectRuns 解释页面内容流，按出现顺序返回文字段
func collectRuns(page pdf.Page) []TextRun {
	contents := page.V.Key("Contents")
	if contents.Kind() == pdf.Null {
		return nil
	}
	ci := newContentInterpreter(page)
	pdf.Interpret(contents, ci.do)
	return ci.runs
}

func (ci *contentInterpreter) do(stk *pdf.Stack, op string) {
	n := stk.Len()
	args := make([]pdf.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = stk.Pop()
	}
	g := &ci.g

	switch op {
	case "q":
		ci.stack = append(ci.stack, *g)
	case "Q":
		if len(ci.stack) > 0 {
			*g = ci.stack[len(ci.stack)-1]
			ci.stack = ci.stack[:len(ci.stack)-1]
		}
	case "cm":
		if len(args) == 6 {
			g.ctm = matrixFromArgs(args).mul(g.ctm)
		}
	case "BT":
		g.tm = identity
		g.tlm = identity
	case "Tf":
		if len(args) == 2 {
			ci.setFont(args[0].Name(), args[1].Float64())
		}
	case "Tc":
		if len(args) == 1 {
			g.charSpace = args[0].Float64()
		}
	case "Tw":
		if len(args) == 1 {
			g.wordSpace = args[0].Float64()
		}
	case "Tz":
		if len(args) == 1 {
			g.scale = args[0].Float64() / 100
		}
	case "TL":
		if len(args) == 1 {
			g.leading = args[0].Float64()
		}
	case "Ts":
		if len(args) == 1 {
			g.rise = args[0].Float64()
		}
	case "TD":
		if len(args) == 2 {
			g.leading = -args[1].Float64()
			ci.moveText(args[0].Float64(), args[1].Float64())
		}
	case "Td":
		if len(args) == 2 {
			ci.moveText(args[0].Float64(), args[1].Float64())
		}
	case "Tm":
		if len(args) == 6 {
			g.tm = matrixFromArgs(args)
			g.tlm = g.tm
		}
	case "T*":
		ci.nextLine()
	case "Tj":
		if len(args) == 1 {
			ci.show(ci.decode(args[0].RawString()), args[0].RawString())
		}
	case "'":
		if len(args) == 1 {
			ci.nextLine()
			ci.show(ci.decode(args[0].RawString()), args[0].RawString())
		}
	case "\"":
		if len(args) == 3 {
			g.wordSpace = args[0].Float64()
			g.charSpace = args[1].Float64()
			ci.nextLine()
			ci.show(ci.decode(args[2].RawString()), args[2].RawString())
		}
	case "TJ":
		if len(args) == 1 {
			ci.showArray(args[0])
		}
	}
}

func (ci *contentInterpreter) setFont(name string, size float64) {
	font, ok := ci.fonts[name]
	if !ok {
		font = ci.page.Font(name)
		ci.fonts[name] = font
	}
	ci.g.font = font
	ci.g.fontName = stripSubsetPrefix(font.BaseFont())
	ci.g.enc = font.Encoder()
	ci.g.size = size
}

func (ci *contentInterpreter) moveText(tx, ty float64) {
	ci.g.tlm = translate(tx, ty).mul(ci.g.tlm)
	ci.g.tm = ci.g.tlm
}

func (ci *contentInterpreter) nextLine() {
	ci.moveText(0, -ci.g.leading)
}

func (ci *contentInterpreter) decode(raw string) string {
	if ci.g.enc == nil {
		return raw
	}
	return ci.g.enc.Decode(raw)
}

// showArray 处理TJ数组，整个数组合并为一个文字段
// 数组中的数字是以千分之一字号计的反向位移，计入文本矩阵的推进量
func (ci *contentInterpreter) showArray(arr pdf.Value) {
	var text strings.Builder
	var raw strings.Builder
	var shift float64
	for i := 0; i < arr.Len(); i++ {
		item := arr.Index(i)
		switch item.Kind() {
		case pdf.String:
			text.WriteString(ci.decode(item.RawString()))
			raw.WriteString(item.RawString())
		case pdf.Integer, pdf.Real:
			n := item.Float64()
			shift -= n / 1000 * ci.g.size
			if n < tjSpaceThreshold && text.Len() > 0 {
				text.WriteString(" ")
			}
		}
	}
	ci.showShifted(text.String(), raw.String(), shift)
}

// show 记录一个文字段并推进文本矩阵
func (ci *contentInterpreter) show(text, raw string) {
	ci.showShifted(text, raw, 0)
}

// showShifted 记录文字段，shift为字形宽度之外的额外推进量（文本空间单位）
func (ci *contentInterpreter) showShifted(text, raw string, shift float64) {
	g := &ci.g
	start := ci.renderMatrix()

	advance := shift
	for i := 0; i < len(raw); i++ {
		advance += g.font.Width(int(raw[i]))/1000*g.size + g.charSpace
		if raw[i] == ' ' {
			advance += g.wordSpace
		}
	}
	g.tm = translate(advance*g.scale, 0).mul(g.tm)

	if strings.TrimSpace(text) == "" {
		return
	}
	size := effectiveSize(start)
	ci.runs = append(ci.runs, TextRun{
		Text:       text,
		FontName:   g.fontName,
		FontSize:   size,
		X:          start[2][0],
		Y:          start[2][1],
		EndX:       ci.renderMatrix()[2][0],
		SpaceWidth: g.font.Width(' ') / 1000 * size * g.scale,
	})
}

// renderMatrix 当前文本渲染矩阵，第三行是基线原点
func (ci *contentInterpreter) renderMatrix() matrix {
	g := &ci.g
	return matrix{{g.size * g.scale, 0, 0}, {0, g.size, 0}, {0, g.rise, 1}}.mul(g.tm).mul(g.ctm)
}

// effectiveSize 文本渲染矩阵的纵向缩放即实际字号
func effectiveSize(trm matrix) float64 {
	size := math.Hypot(trm[1][0], trm[1][1])
	if size == 0 {
		size = math.Hypot(trm[0][0], trm[0][1])
	}
	return size
}

// stripSubsetPrefix 去掉嵌入子集字体的"ABCDEF+"前缀
func stripSubsetPrefix(name string) string {
	if i := strings.Index(name, "+"); i >= 0 {
		return name[i+1:]
	}
	return name
}
