package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/glyph-ai/glyph/pkg/apierror"
)

// OCRDocument references a previously uploaded file.
type OCRDocument struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

// OCRRequest is the body sent to the OCR endpoint.
type OCRRequest struct {
	Model    string      `json:"model"`
	Document OCRDocument `json:"document"`
}

// Dimensions describes a page's pixel geometry.
type Dimensions struct {
	DPI    int `json:"dpi"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Page is one page of OCR output.
type Page struct {
	Index      int         `json:"index"`
	Markdown   string      `json:"markdown"`
	Images     []PageImage `json:"images"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

// PageImage is an image region extracted from a page.
type PageImage struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
}

// UsageInfo reports what the OCR run consumed.
type UsageInfo struct {
	PagesProcessed int   `json:"pages_processed"`
	DocSizeBytes   int64 `json:"doc_size_bytes"`
}

// OCRResponse is the full OCR endpoint payload.
type OCRResponse struct {
	Pages              []Page    `json:"pages"`
	Model              string    `json:"model"`
	DocumentAnnotation string    `json:"document_annotation,omitempty"`
	UsageInfo          UsageInfo `json:"usage_info"`
}

// ExtractedText joins the page markdown in order with blank lines
// between pages.
func (r *OCRResponse) ExtractedText() string {
	parts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		parts[i] = p.Markdown
	}
	return strings.Join(parts, "\n\n")
}

// Validate rejects structurally broken OCR responses before any text is
// handed to the caller.
func (r *OCRResponse) Validate() error {
	if !strings.HasPrefix(r.Model, "mistral-") {
		return apierror.New(apierror.KindValidation, "OCR response has unexpected model %q", r.Model)
	}
	if len(r.Pages) == 0 {
		return apierror.New(apierror.KindValidation, "OCR response contains no pages")
	}
	for i, p := range r.Pages {
		if p.Index != i {
			return apierror.New(apierror.KindValidation, "OCR page %d has out-of-order index %d", i, p.Index)
		}
		if p.Dimensions != nil {
			if p.Dimensions.Width <= 0 || p.Dimensions.Height <= 0 {
				return apierror.New(apierror.KindValidation,
					"OCR page %d has invalid dimensions %dx%d", i, p.Dimensions.Width, p.Dimensions.Height)
			}
		}
	}
	if r.UsageInfo.PagesProcessed < len(r.Pages) {
		return apierror.New(apierror.KindValidation,
			"OCR response reports %d pages processed but returned %d", r.UsageInfo.PagesProcessed, len(r.Pages))
	}
	return nil
}

// ProcessOCR runs the OCR model over an already uploaded file.
func (c *Client) ProcessOCR(ctx context.Context, fileID, model string) (*OCRResponse, error) {
	if fileID == "" {
		return nil, apierror.New(apierror.KindValidation, "file id must not be empty")
	}
	if model == "" {
		return nil, apierror.New(apierror.KindValidation, "model must not be empty")
	}

	payload, err := json.Marshal(OCRRequest{
		Model:    model,
		Document: OCRDocument{Type: "file", FileID: fileID},
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, err, "encoding OCR request")
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/ocr"), bytes.NewReader(payload))
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, err, "creating OCR request")
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	body, err := c.do(ctx, "ocr.process", newReq, int64(len(payload)))
	if err != nil {
		return nil, err
	}

	var resp OCRResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, err, "malformed OCR response")
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}
