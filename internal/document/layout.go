package document

import (
	"math"
	"sort"
)

// groupOptions 文字段分组参数
type groupOptions struct {
	lineTolerance float64 // 同行判定：基线差不超过 lineTolerance × 字号
	blockGapRatio float64 // 分块判定：行距超过 blockGapRatio × 字号
}

// groupIntoLines 按内容流顺序把基线相近的文字段合并为行
func groupIntoLines(runs []TextRun, tolerance float64) []Line {
	var lines []Line
	var lineY, lineSize float64

	for _, run := range runs {
		if len(lines) > 0 {
			limit := tolerance * math.Max(run.FontSize, lineSize)
			if math.Abs(run.Y-lineY) <= limit {
				cur := &lines[len(lines)-1]
				cur.Runs = append(cur.Runs, run)
				lineSize = math.Max(lineSize, run.FontSize)
				continue
			}
		}
		lines = append(lines, Line{Runs: []TextRun{run}})
		lineY = run.Y
		lineSize = run.FontSize
	}

	for i := range lines {
		runs := lines[i].Runs
		sort.SliceStable(runs, func(a, b int) bool { return runs[a].X < runs[b].X })
	}
	return lines
}

// groupLinesIntoBlocks 按行距与字体变化把行合并为文本块
func groupLinesIntoBlocks(lines []Line, gapRatio float64) []Block {
	var blocks []Block
	for i, line := range lines {
		if i == 0 || startsNewBlock(lines[i-1], line, gapRatio) {
			blocks = append(blocks, Block{})
		}
		cur := &blocks[len(blocks)-1]
		cur.Lines = append(cur.Lines, line)
	}
	return blocks
}

func startsNewBlock(prev, cur Line, gapRatio float64) bool {
	p, c := prev.Runs[0], cur.Runs[0]

	// 字号或字体变化视为新块
	if round2(p.FontSize) != round2(c.FontSize) || isBoldFont(p.FontName) != isBoldFont(c.FontName) {
		return true
	}

	gap := p.Y - c.Y
	if gap <= 0 {
		return true
	}
	return gap > gapRatio*math.Max(lineSize(prev), lineSize(cur))
}

func lineSize(l Line) float64 {
	var size float64
	for _, r := range l.Runs {
		size = math.Max(size, r.FontSize)
	}
	return size
}

// groupRuns 把页面的文字段整理为文本块
func groupRuns(runs []TextRun, opts groupOptions) []Block {
	if len(runs) == 0 {
		return nil
	}
	return groupLinesIntoBlocks(groupIntoLines(runs, opts.lineTolerance), opts.blockGapRatio)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
