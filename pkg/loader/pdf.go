package loader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// The pdfium webassembly runtime is expensive to start, so one pool is shared
// by all loaders and initialized on first PDF.
var (
	pdfiumOnce sync.Once
	pdfiumPool pdfium.Pool
	pdfiumErr  error
)

func pdfiumInstance() (pdfium.Pdfium, error) {
	pdfiumOnce.Do(func() {
		pdfiumPool, pdfiumErr = webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  1,
			MaxTotal: 1,
		})
	})
	if pdfiumErr != nil {
		return nil, fmt.Errorf("failed to initialize pdfium: %w", pdfiumErr)
	}

	return pdfiumPool.GetInstance(30 * time.Second)
}

func extractPDFText(raw []byte) (string, error) {
	instance, err := pdfiumInstance()
	if err != nil {
		return "", err
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &raw,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	pageCount, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get page count: %w", err)
	}

	var text strings.Builder
	for i := 0; i < pageCount.PageCount; i++ {
		pageText, err := instance.GetPageText(&requests.GetPageText{
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{
					Document: doc.Document,
					Index:    i,
				},
			},
		})
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}

		text.WriteString(pageText.Text)
		text.WriteString("\n")
	}

	return text.String(), nil
}
