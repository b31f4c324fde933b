package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

var jpegSignature = []byte{0xFF, 0xD8, 0xFF}

// ScannedPDF handles PDFs without a text layer. A scanned PDF is a raster
// image per page wrapped in PDF structure, almost always JPEG (DCTDecode);
// this extractor unwraps those page images and transcribes each through the
// underlying image extractor.
type ScannedPDF struct {
	images Extractor
}

func NewScannedPDF(images Extractor) *ScannedPDF {
	return &ScannedPDF{images: images}
}

func (s *ScannedPDF) Extract(ctx context.Context, doc Document) (*Result, error) {
	if !bytes.HasPrefix(doc.Data, pdfSignature) {
		return nil, fmt.Errorf("not a PDF document")
	}

	pages := pdfPageImages(doc.Data)
	if len(pages) == 0 {
		return nil, fmt.Errorf("no embedded page images found in scanned PDF")
	}

	var parts []string
	engine := "vision"
	for i, img := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.images.Extract(ctx, Document{
			Data:     img,
			Filename: fmt.Sprintf("%s#page%d", doc.Filename, i+1),
			Kind:     KindImage,
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		parts = append(parts, res.Text)
		engine = res.Engine
	}

	return newResult(strings.Join(parts, "\n\n"), engine), nil
}

// pdfPageImages returns the DCTDecode (JPEG) stream bodies in page order.
// Flate-compressed raw pixel data is not a standalone image and is skipped.
func pdfPageImages(data []byte) [][]byte {
	var images [][]byte
	rest := data
	for {
		i := bytes.Index(rest, []byte("stream"))
		if i < 0 {
			break
		}
		header := rest[:i]
		if j := bytes.LastIndex(header, []byte("<<")); j >= 0 {
			header = header[j:]
		}

		body := rest[i+len("stream"):]
		body = bytes.TrimPrefix(body, []byte("\r\n"))
		body = bytes.TrimPrefix(body, []byte("\n"))

		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		raw := bytes.TrimRight(body[:end], "\r\n")

		if bytes.Contains(header, []byte("/DCTDecode")) && bytes.HasPrefix(raw, jpegSignature) {
			images = append(images, raw)
		}
		rest = body[end+len("endstream"):]
	}
	return images
}
