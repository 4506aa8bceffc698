package api

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glyph-ai/glyph/pkg/apierror"
	"github.com/glyph-ai/glyph/pkg/fileinfo"
)

// UploadResponse is the Files API object returned after an upload.
type UploadResponse struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status,omitempty"`
}

var validStatuses = map[string]bool{
	"uploaded": true, "processing": true, "processed": true, "error": true,
}

// Validate rejects malformed or implausible upload responses. localSize
// is the byte count of the file actually sent; a wildly different
// reported size means the server processed something else.
func (r *UploadResponse) Validate(localSize int64) error {
	if r.ID == "" {
		return apierror.New(apierror.KindValidation, "upload response is missing a file id")
	}
	for _, c := range r.ID {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return apierror.New(apierror.KindValidation, "file id %q contains invalid characters", r.ID)
		}
	}
	if r.Object != "file" {
		return apierror.New(apierror.KindValidation, "upload response object must be %q, got %q", "file", r.Object)
	}
	if r.Bytes <= 0 {
		return apierror.New(apierror.KindValidation, "upload response reports non-positive size %d", r.Bytes)
	}
	if !plausibleSize(r.Bytes, localSize) {
		return apierror.New(apierror.KindValidation,
			"upload response reports %d bytes for a %d byte file", r.Bytes, localSize)
	}
	if r.CreatedAt <= 0 {
		return apierror.New(apierror.KindValidation, "upload response timestamp must be positive, got %d", r.CreatedAt)
	}
	if r.CreatedAt > time.Now().Add(time.Hour).Unix() {
		return apierror.New(apierror.KindValidation, "upload response timestamp %d is in the future", r.CreatedAt)
	}
	if r.Filename == "" {
		return apierror.New(apierror.KindValidation, "upload response is missing a filename")
	}
	if strings.ContainsAny(r.Filename, "/\\") {
		return apierror.New(apierror.KindValidation, "upload response filename %q contains path separators", r.Filename)
	}
	if r.Purpose != uploadPurpose {
		return apierror.New(apierror.KindValidation, "upload response purpose must be %q, got %q", uploadPurpose, r.Purpose)
	}
	if r.Status != "" && !validStatuses[r.Status] {
		return apierror.New(apierror.KindValidation, "upload response has unknown status %q", r.Status)
	}
	return nil
}

// plausibleSize accepts a tolerance of 10% or 1 KiB, whichever is larger.
func plausibleSize(reported, local int64) bool {
	diff := reported - local
	if diff < 0 {
		diff = -diff
	}
	tolerance := local / 10
	if tolerance < 1024 {
		tolerance = 1024
	}
	return diff <= tolerance
}

// UploadFile sends a validated file to the Files API, choosing a
// buffered or streamed multipart body based on the configured threshold.
func (c *Client) UploadFile(ctx context.Context, f *fileinfo.File) (*UploadResponse, error) {
	streamed := f.Size > c.streamingThreshold
	mode := "buffered"
	if streamed {
		mode = "streamed"
	}
	c.logger.Info("upload mode selected",
		zap.String("mode", mode),
		zap.Int64("file_size", f.Size),
		zap.Int64("threshold", c.streamingThreshold),
	)

	var newReq requestFactory
	if streamed {
		newReq = c.streamedUploadRequest(f)
	} else {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindIO, err, "reading %s", f.Path)
		}
		newReq = c.bufferedUploadRequest(f, data)
	}

	body, err := c.do(ctx, "files.upload", newReq, f.Size)
	if err != nil {
		return nil, err
	}

	var resp UploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "malformed upload response")
	}
	if err := resp.Validate(f.Size); err != nil {
		return nil, err
	}
	return &resp, nil
}
