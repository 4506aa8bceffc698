package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/glyph-ai/glyph/pkg/apierror"
	"github.com/glyph-ai/glyph/pkg/fileinfo"
)

func writeTestPDF(t *testing.T, size int) *fileinfo.File {
	t.Helper()
	content := append([]byte("%PDF-1.4\n"), make([]byte, size)...)
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return &fileinfo.File{Path: path, Size: int64(len(content)), MIMEType: "application/pdf"}
}

func uploadResponseFor(f *fileinfo.File) string {
	return fmt.Sprintf(`{
		"id": "file-abc123",
		"object": "file",
		"bytes": %d,
		"created_at": %d,
		"filename": %q,
		"purpose": "ocr",
		"status": "processed"
	}`, f.Size, time.Now().Unix(), f.Name())
}

func TestUploadSendsMultipartForm(t *testing.T) {
	f := writeTestPDF(t, 64)

	var purpose, filename, contentType string
	var fileBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		purpose = r.FormValue("purpose")
		part, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("reading file part: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer part.Close()
		filename = header.Filename
		contentType = header.Header.Get("Content-Type")
		fileBytes, _ = io.ReadAll(part)
		w.Write([]byte(uploadResponseFor(f)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, err := c.UploadFile(context.Background(), f)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	if resp.ID != "file-abc123" {
		t.Errorf("ID = %q", resp.ID)
	}
	if purpose != "ocr" {
		t.Errorf("purpose = %q, want ocr", purpose)
	}
	if filename != "scan.pdf" {
		t.Errorf("filename = %q", filename)
	}
	if contentType != "application/pdf" {
		t.Errorf("file part Content-Type = %q", contentType)
	}
	if int64(len(fileBytes)) != f.Size {
		t.Errorf("received %d bytes, want %d", len(fileBytes), f.Size)
	}
}

func TestUploadBuffersSmallFiles(t *testing.T) {
	f := writeTestPDF(t, 64)

	var contentLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(uploadResponseFor(f)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil) // threshold 1 MiB, file well under
	if _, err := c.UploadFile(context.Background(), f); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if contentLength <= 0 {
		t.Errorf("buffered upload should declare a content length, got %d", contentLength)
	}
}

func TestUploadStreamsLargeFiles(t *testing.T) {
	f := writeTestPDF(t, 4096)

	var contentLength int64
	var fileBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		part, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer part.Close()
		fileBytes, _ = io.ReadAll(part)
		w.Write([]byte(uploadResponseFor(f)))
	}))
	defer srv.Close()

	creds, err := NewCredentials("sk-test-0123456789", srv.URL)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	c, err := NewClient(Options{
		Credentials:        creds,
		Timeout:            5 * time.Second,
		Policy:             fastPolicy(2),
		StreamingThreshold: 1024, // force streaming
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.UploadFile(context.Background(), f); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if contentLength != -1 {
		t.Errorf("streamed upload should use chunked encoding, got ContentLength %d", contentLength)
	}
	if int64(len(fileBytes)) != f.Size {
		t.Errorf("received %d bytes, want %d", len(fileBytes), f.Size)
	}
}

// writeSizedPDF creates a file of exactly total bytes.
func writeSizedPDF(t *testing.T, total int64) *fileinfo.File {
	t.Helper()
	content := make([]byte, total)
	copy(content, "%PDF-1.4\n")
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return &fileinfo.File{Path: path, Size: total, MIMEType: "application/pdf"}
}

func newThresholdClient(t *testing.T, baseURL string, threshold int64) *Client {
	t.Helper()
	creds, err := NewCredentials("sk-test-0123456789", baseURL)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	c, err := NewClient(Options{
		Credentials:        creds,
		Timeout:            30 * time.Second,
		Policy:             fastPolicy(2),
		StreamingThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestUploadThresholdBoundary(t *testing.T) {
	const threshold = 2048

	cases := []struct {
		name     string
		size     int64
		streamed bool
	}{
		{"at threshold buffers", threshold, false},
		{"one byte over streams", threshold + 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := writeSizedPDF(t, tc.size)

			var contentLength int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				contentLength = r.ContentLength
				io.Copy(io.Discard, r.Body)
				w.Write([]byte(uploadResponseFor(f)))
			}))
			defer srv.Close()

			c := newThresholdClient(t, srv.URL, threshold)
			if _, err := c.UploadFile(context.Background(), f); err != nil {
				t.Fatalf("UploadFile: %v", err)
			}
			if tc.streamed && contentLength != -1 {
				t.Errorf("size %d should stream, got ContentLength %d", tc.size, contentLength)
			}
			if !tc.streamed && contentLength <= 0 {
				t.Errorf("size %d should buffer, got ContentLength %d", tc.size, contentLength)
			}
		})
	}
}

func TestStreamedUploadBoundsMemory(t *testing.T) {
	const fileSize = 8 << 20
	f := writeSizedPDF(t, fileSize)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(uploadResponseFor(f)))
	}))
	defer srv.Close()

	c := newThresholdClient(t, srv.URL, 1<<20)

	// Warm up the transport so one-time allocations stay out of the
	// measured window.
	if _, err := c.UploadFile(context.Background(), f); err != nil {
		t.Fatalf("warmup UploadFile: %v", err)
	}

	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	if _, err := c.UploadFile(context.Background(), f); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	runtime.ReadMemStats(&after)
	allocated := after.TotalAlloc - before.TotalAlloc

	// A buffered build would allocate at least the full file; the
	// streamed path must stay well under half of it.
	if allocated > fileSize/2 {
		t.Errorf("streamed upload allocated %d bytes for a %d byte file", allocated, int64(fileSize))
	}
}

func TestUploadRetriesResendFullBody(t *testing.T) {
	f := writeTestPDF(t, 128)

	var sizes []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		part, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		part.Close()
		sizes = append(sizes, int64(len(data)))
		if len(sizes) == 1 {
			http.Error(w, "", http.StatusBadGateway)
			return
		}
		w.Write([]byte(uploadResponseFor(f)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	if _, err := c.UploadFile(context.Background(), f); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if len(sizes) != 2 {
		t.Fatalf("server saw %d uploads, want 2", len(sizes))
	}
	for i, n := range sizes {
		if n != f.Size {
			t.Errorf("attempt %d sent %d bytes, want %d", i+1, n, f.Size)
		}
	}
}

func TestUploadRejectsMalformedResponse(t *testing.T) {
	f := writeTestPDF(t, 64)

	cases := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"missing id", func(m map[string]any) { m["id"] = "" }},
		{"bad id charset", func(m map[string]any) { m["id"] = "file/../../etc" }},
		{"wrong object", func(m map[string]any) { m["object"] = "model" }},
		{"zero bytes", func(m map[string]any) { m["bytes"] = 0 }},
		{"implausible bytes", func(m map[string]any) { m["bytes"] = f.Size + 1<<20 }},
		{"zero timestamp", func(m map[string]any) { m["created_at"] = 0 }},
		{"future timestamp", func(m map[string]any) { m["created_at"] = time.Now().Add(48 * time.Hour).Unix() }},
		{"missing filename", func(m map[string]any) { m["filename"] = "" }},
		{"path in filename", func(m map[string]any) { m["filename"] = "../scan.pdf" }},
		{"wrong purpose", func(m map[string]any) { m["purpose"] = "fine-tune" }},
		{"unknown status", func(m map[string]any) { m["status"] = "exploded" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := map[string]any{
				"id":         "file-abc123",
				"object":     "file",
				"bytes":      f.Size,
				"created_at": time.Now().Unix(),
				"filename":   f.Name(),
				"purpose":    "ocr",
				"status":     "processed",
			}
			tc.mutate(m)
			body, _ := json.Marshal(m)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				w.Write(body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			_, err := c.UploadFile(context.Background(), f)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if kind := apierror.KindOf(err); kind != apierror.KindValidation {
				t.Errorf("kind = %v, want validation", kind)
			}
		})
	}
}

func TestUploadAcceptsSizeWithinTolerance(t *testing.T) {
	f := writeTestPDF(t, 64)

	resp := &UploadResponse{
		ID:        "file-abc123",
		Object:    "file",
		Bytes:     f.Size + 512, // multipart framing overhead
		CreatedAt: time.Now().Unix(),
		Filename:  f.Name(),
		Purpose:   "ocr",
	}
	if err := resp.Validate(f.Size); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
