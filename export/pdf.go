package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// wrapPDF embeds an encoded PNG as the single page of a new PDF document.
func wrapPDF(png []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	imp := pdfcpu.DefaultImportConfig()

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(png)}, imp, conf); err != nil {
		return nil, fmt.Errorf("pdfcpu import: %w", err)
	}
	return out.Bytes(), nil
}
