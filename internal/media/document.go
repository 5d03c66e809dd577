package media

import (
	"fmt"
	"strings"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/spf13/afero"
)

// DocumentInspector reads basic facts out of a staged resume.
type DocumentInspector struct {
	fs afero.Fs
}

func NewDocumentInspector(fs afero.Fs) *DocumentInspector {
	return &DocumentInspector{fs: fs}
}

// Inspect returns the page count of a PDF or the paragraph count of a DOCX.
// Legacy .doc files are reported without a count.
func (d *DocumentInspector) Inspect(staged *models.StagedFile) (info models.DocumentInfo, err error) {
	// both parsers panic on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inspect %s: malformed document: %v", staged.OriginalName, r)
		}
	}()

	f, err := d.fs.Open(staged.LocalPath)
	if err != nil {
		return info, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return info, fmt.Errorf("stat staged file: %w", err)
	}

	switch staged.MimeType {
	case models.MimePDF:
		reader, err := pdf.NewReader(f, stat.Size())
		if err != nil {
			return info, fmt.Errorf("read pdf: %w", err)
		}
		return models.DocumentInfo{Format: "pdf", Pages: reader.NumPage()}, nil

	case models.MimeDOCX:
		doc, err := docx.ReadDocxFromMemory(f, stat.Size())
		if err != nil {
			return info, fmt.Errorf("read docx: %w", err)
		}
		defer doc.Close()
		content := doc.Editable().GetContent()
		return models.DocumentInfo{Format: "docx", Paragraphs: strings.Count(content, "</w:p>")}, nil

	case models.MimeDOC:
		return models.DocumentInfo{Format: "doc"}, nil
	}

	return info, fmt.Errorf("inspect: unsupported document type %s", staged.MimeType)
}
