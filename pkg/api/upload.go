package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"

	"github.com/glyph-ai/glyph/pkg/apierror"
	"github.com/glyph-ai/glyph/pkg/fileinfo"
)

// uploadPurpose is the only purpose value the OCR workflow uses.
const uploadPurpose = "ocr"

// copyChunkSize bounds per-chunk memory during a streamed upload.
const copyChunkSize = 256 * 1024

// requestFactory creates a fresh request per retry attempt, because
// request bodies are consumed by each send.
type requestFactory func(ctx context.Context) (*http.Request, error)

// bufferedUploadRequest builds the whole multipart body in memory. data
// is read once up front and shared across attempts.
func (c *Client) bufferedUploadRequest(f *fileinfo.File, data []byte) requestFactory {
	return func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)

		part, err := createFilePart(mw, f)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, err, "writing multipart body")
		}
		if err := mw.WriteField("purpose", uploadPurpose); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, err, "writing purpose field")
		}
		if err := mw.Close(); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, err, "finalizing multipart body")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/files"), bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, err, "creating upload request")
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}
}

// streamedUploadRequest feeds the multipart body through a pipe so peak
// memory stays at a constant multiple of the chunk size regardless of
// file size. The file is opened before the request is created, so a
// read failure surfaces before any network activity.
func (c *Client) streamedUploadRequest(f *fileinfo.File) requestFactory {
	return func(ctx context.Context) (*http.Request, error) {
		src, err := f.Open()
		if err != nil {
			return nil, err
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)

		go pumpMultipart(mw, pw, src, f)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/files"), pr)
		if err != nil {
			src.Close()
			pr.Close()
			return nil, apierror.Wrap(apierror.KindInternal, err, "creating upload request")
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		// ContentLength stays unset: the body goes out chunked.
		return req, nil
	}
}

// pumpMultipart writes the file part and purpose field into the pipe,
// propagating any failure to the reading side.
func pumpMultipart(mw *multipart.Writer, pw *io.PipeWriter, src *os.File, f *fileinfo.File) {
	defer src.Close()

	part, err := createFilePart(mw, f)
	if err != nil {
		pw.CloseWithError(err)
		return
	}

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(part, src, buf); err != nil {
		pw.CloseWithError(apierror.Wrap(apierror.KindIO, err, "streaming %s", f.Path))
		return
	}
	if err := mw.WriteField("purpose", uploadPurpose); err != nil {
		pw.CloseWithError(err)
		return
	}
	if err := mw.Close(); err != nil {
		pw.CloseWithError(err)
		return
	}
	pw.Close()
}

// createFilePart opens the "file" form part with the real filename and
// MIME type rather than the octet-stream default.
func createFilePart(mw *multipart.Writer, f *fileinfo.File) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(f.Name())+`"`)
	h.Set("Content-Type", f.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, err, "creating multipart file part")
	}
	return part, nil
}

func escapeQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
