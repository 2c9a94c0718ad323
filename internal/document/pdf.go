package document

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

const (
	defaultLineTolerance = 0.5
	defaultBlockGapRatio = 1.6
)

// PDFLayoutReader PDF版面读取器
// 先用pdfcpu校验文件并获取页数，再逐页解释内容流得到带字体信息的文本块
type PDFLayoutReader struct {
	logger *logrus.Logger
	opts   groupOptions
}

// ReaderOption 版面读取器配置选项
type ReaderOption func(*PDFLayoutReader)

// WithReaderLogger 设置日志记录器
func WithReaderLogger(logger *logrus.Logger) ReaderOption {
	return func(r *PDFLayoutReader) {
		r.logger = logger
	}
}

// WithLineTolerance 设置同行判定的基线容差（相对字号）
func WithLineTolerance(ratio float64) ReaderOption {
	return func(r *PDFLayoutReader) {
		if ratio > 0 {
			r.opts.lineTolerance = ratio
		}
	}
}

// WithBlockGapRatio 设置分块判定的行距比例（相对字号）
func WithBlockGapRatio(ratio float64) ReaderOption {
	return func(r *PDFLayoutReader) {
		if ratio > 0 {
			r.opts.blockGapRatio = ratio
		}
	}
}

// NewPDFLayoutReader 创建PDF版面读取器
func NewPDFLayoutReader(opts ...ReaderOption) *PDFLayoutReader {
	r := &PDFLayoutReader{
		logger: logrus.StandardLogger(),
		opts: groupOptions{
			lineTolerance: defaultLineTolerance,
			blockGapRatio: defaultBlockGapRatio,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadLayout 读取PDF的全部页面
func (r *PDFLayoutReader) ReadLayout(ctx context.Context, filePath string) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, &OpenError{Path: filePath, Err: fmt.Errorf("malformed document: %v", rec)}
		}
	}()

	pageCount, err := api.PageCountFile(filePath)
	if err != nil {
		return nil, &OpenError{Path: filePath, Err: err}
	}

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, &OpenError{Path: filePath, Err: err}
	}
	defer f.Close()

	numPages := reader.NumPage()
	if numPages != pageCount {
		r.logger.WithFields(logrus.Fields{
			"file":    filePath,
			"pdfcpu":  pageCount,
			"content": numPages,
		}).Debug("Page count mismatch between readers")
	}

	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: i, Blocks: r.readPage(filePath, reader, i)})
	}
	return pages, nil
}

// readPage 读取单页，内容流损坏时返回空页
func (r *PDFLayoutReader) readPage(filePath string, reader *pdf.Reader, num int) (blocks []Block) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"file": filePath,
				"page": num,
			}).Warnf("Failed to interpret page content: %v", rec)
			blocks = nil
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return nil
	}
	return groupRuns(collectRuns(page), r.opts)
}
