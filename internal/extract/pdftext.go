package extract

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"
)

// PDFText pulls the text layer out of a PDF by decoding its content streams
// and collecting the argument strings of the text-showing operators (Tj, TJ,
// ' and "). It handles FlateDecode streams and both legal string forms,
// literal `(...)` and hex `<...>`, including UTF-16BE strings carrying a
// BOM. Anything without a recoverable text layer is an error, not an empty
// success, so callers can tell "no text" from "blank page".
//
// There is deliberately no third-party PDF dependency here: the layout/OCR
// path goes through the model-backed extractor instead.
type PDFText struct{}

func NewPDFText() *PDFText {
	return &PDFText{}
}

func (p *PDFText) Extract(ctx context.Context, doc Document) (*Result, error) {
	if !bytes.HasPrefix(doc.Data, pdfSignature) {
		return nil, fmt.Errorf("not a PDF document")
	}

	var sb strings.Builder
	for _, stream := range contentStreams(doc.Data) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		appendStreamText(&sb, stream)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no extractable text layer")
	}
	return newResult(text, "pdftext"), nil
}

// contentStreams returns every stream body in the file, flate-decoded when
// possible and raw otherwise.
func contentStreams(data []byte) [][]byte {
	var streams [][]byte
	rest := data
	for {
		i := bytes.Index(rest, []byte("stream"))
		if i < 0 {
			break
		}
		body := rest[i+len("stream"):]
		// the keyword is followed by CRLF or LF
		body = bytes.TrimPrefix(body, []byte("\r\n"))
		body = bytes.TrimPrefix(body, []byte("\n"))

		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		raw := bytes.TrimRight(body[:end], "\r\n")

		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			if decoded, err := io.ReadAll(zr); err == nil {
				raw = decoded
			}
			zr.Close()
		}
		streams = append(streams, raw)
		rest = body[end+len("endstream"):]
	}
	return streams
}

// appendStreamText walks one decoded content stream and appends the text
// carried by its show operators.
func appendStreamText(sb *strings.Builder, stream []byte) {
	var pending []string
	i := 0
	for i < len(stream) {
		switch stream[i] {
		case '(':
			s, next := literalString(stream, i)
			pending = append(pending, s)
			i = next
		case '<':
			// << opens a dictionary, a single < opens a hex string
			if i+1 < len(stream) && stream[i+1] == '<' {
				i += 2
				continue
			}
			s, next := hexString(stream, i)
			pending = append(pending, s)
			i = next
		case 'T':
			if i+1 < len(stream) {
				switch stream[i+1] {
				case 'j', 'J':
					flush(sb, &pending, " ")
					i += 2
					continue
				case '*':
					flush(sb, &pending, "")
					sb.WriteByte('\n')
					i += 2
					continue
				}
			}
			i++
		case '\'', '"':
			flush(sb, &pending, "")
			sb.WriteByte('\n')
			i++
		case 'E':
			// ET ends a text object; drop strings never shown
			if i+1 < len(stream) && stream[i+1] == 'T' {
				pending = pending[:0]
				i += 2
				continue
			}
			i++
		default:
			i++
		}
	}
}

func flush(sb *strings.Builder, pending *[]string, sep string) {
	for idx, s := range *pending {
		if idx > 0 && sep != "" {
			sb.WriteString(sep)
		}
		sb.WriteString(s)
	}
	if len(*pending) > 0 {
		sb.WriteByte(' ')
	}
	*pending = (*pending)[:0]
}

// literalString decodes a PDF literal string starting at the '(' at pos.
// It returns the decoded string and the index just past the closing ')'.
func literalString(data []byte, pos int) (string, int) {
	var out bytes.Buffer
	depth := 0
	i := pos
	for i < len(data) {
		c := data[i]
		switch c {
		case '\\':
			if i+1 < len(data) {
				switch data[i+1] {
				case 'n':
					out.WriteByte('\n')
				case 'r':
					out.WriteByte('\r')
				case 't':
					out.WriteByte('\t')
				case '(', ')', '\\':
					out.WriteByte(data[i+1])
				}
				i += 2
				continue
			}
			i++
		case '(':
			if depth > 0 {
				out.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return decodeText(out.Bytes()), i + 1
			}
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return decodeText(out.Bytes()), i
}

// hexString decodes a PDF hex string starting at the '<' at pos. Whitespace
// inside the brackets is ignored and an odd final digit reads as if padded
// with zero, both per the file format.
func hexString(data []byte, pos int) (string, int) {
	var digits []byte
	i := pos + 1
	for i < len(data) && data[i] != '>' {
		c := data[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
		i++
	}
	if i < len(data) {
		i++ // consume '>'
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	decoded, err := hex.DecodeString(string(digits))
	if err != nil {
		return "", i
	}
	return decodeText(decoded), i
}

// decodeText interprets a decoded string object's bytes: UTF-16BE when the
// BOM says so, raw bytes normalized to valid UTF-8 otherwise.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	return strings.ToValidUTF8(string(b), "")
}
