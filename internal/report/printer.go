package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GotenbergPrinter renders HTML through a Gotenberg-compatible Chromium
// conversion service.
type GotenbergPrinter struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewGotenbergPrinter(baseURL string, timeout time.Duration, log *zap.Logger) *GotenbergPrinter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GotenbergPrinter{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (p *GotenbergPrinter) Print(ctx context.Context, html []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(html); err != nil {
		return nil, err
	}
	_ = mw.WriteField("printBackground", "true")
	_ = mw.WriteField("preferCssPageSize", "false")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/forms/chromium/convert/html", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("pdf service returned %d: %s", resp.StatusCode, string(b))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		p.log.Warn("pdf service returned unexpected content", zap.String("content_type", resp.Header.Get("Content-Type")))
		return nil, fmt.Errorf("pdf service returned non-pdf content")
	}
	return pdf, nil
}
