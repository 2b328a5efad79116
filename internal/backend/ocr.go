package backend

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// OCR uploads an image and returns the recognized text.
func (c *Client) OCR(ctx context.Context, fileName string, image []byte) (string, error) {
	const op = "ocr"
	if fileName == "" {
		fileName = "photo.jpg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(fileName)+`"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return "", &Error{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	}
	if _, err := part.Write(image); err != nil {
		return "", &Error{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &Error{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	}

	raw, err := c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/api/v1/ocr/ocr",
		body:        &buf,
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return "", err
	}
	return ResultText(raw), nil
}

func escapeQuotes(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
