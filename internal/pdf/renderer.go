package pdf

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"github.com/unidoc/unipdf/v3/render"
)

// PageText 单页提取的文本
type PageText struct {
	PageNum int
	Text    string
}

// Processor PDF解析与渲染器
type Processor struct {
	dpi int
}

// NewProcessor 创建PDF处理器,dpi控制页渲染分辨率
func NewProcessor(dpi int) *Processor {
	if dpi <= 0 {
		dpi = 100
	}
	return &Processor{dpi: dpi}
}

func newReader(r io.Reader) (*model.PdfReader, error) {
	pdfBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取PDF文件失败: %w", err)
	}
	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, fmt.Errorf("解析PDF失败: %w", err)
	}
	return pdfReader, nil
}

// PageCount 返回PDF总页数
func (p *Processor) PageCount(r io.Reader) (int, error) {
	pdfReader, err := newReader(r)
	if err != nil {
		return 0, err
	}
	n, err := pdfReader.GetNumPages()
	if err != nil {
		return 0, fmt.Errorf("获取PDF页数失败: %w", err)
	}
	return n, nil
}

// ExtractPages 逐页提取文本。解析失败的页跳过而不中断整体流程。
func (p *Processor) ExtractPages(r io.Reader) ([]PageText, error) {
	pdfReader, err := newReader(r)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}

	pages := make([]PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			continue
		}
		pages = append(pages, PageText{PageNum: i, Text: text})
	}
	return pages, nil
}

// RenderPagePNG 渲染指定页为PNG,pageNum从1开始
func (p *Processor) RenderPagePNG(r io.Reader, pageNum int) ([]byte, error) {
	pdfReader, err := newReader(r)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}
	if pageNum < 1 || pageNum > numPages {
		return nil, fmt.Errorf("页码超出范围: %d (共%d页)", pageNum, numPages)
	}

	page, err := pdfReader.GetPage(pageNum)
	if err != nil {
		return nil, fmt.Errorf("获取第%d页失败: %w", pageNum, err)
	}

	device := render.NewImageDevice()
	// 根据mediabox宽度和DPI计算输出宽度,PDF单位为1/72英寸
	if mbox, err := page.GetMediaBox(); err == nil && mbox != nil {
		device.OutputWidth = int(mbox.Width() * float64(p.dpi) / 72.0)
	}

	img, err := device.Render(page)
	if err != nil {
		return nil, fmt.Errorf("渲染第%d页失败: %w", pageNum, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("PNG编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPageDataURL 渲染指定页并编码为base64 data URL,
// 供多模态模型的image_url内容使用。
func (p *Processor) RenderPageDataURL(r io.Reader, pageNum int) (string, error) {
	data, err := p.RenderPagePNG(r, pageNum)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
