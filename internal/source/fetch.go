package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"shadeqc/internal"
	"shadeqc/internal/config"
	"shadeqc/internal/pipeline"
)

// ErrUnavailable wraps every failure to obtain the source document.
var ErrUnavailable = errors.New("source unavailable")

const maxDocumentBytes = 64 << 20

var contentTypeExt = map[string]string{
	"text/csv":                 ".csv",
	"application/csv":          ".csv",
	"text/html":                ".html",
	"application/pdf":          ".pdf",
	"message/rfc822":           ".eml",
	"application/gzip":         ".csv.gz",
	"application/x-gzip":       ".csv.gz",
	"application/zstd":         ".csv.zst",
	"application/x-xz":         ".csv.xz",
	"application/x-bzip2":      ".csv.bz2",

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
}

type Document struct {
	Location  string
	Name      string
	Blob      []byte
	FetchedAt time.Time
}

// Fetcher makes exactly one attempt per call; there is no retry.
type Fetcher struct {
	httpClient *http.Client
}

func NewFetcher(cfg config.Config) *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: cfg.SourceTimeout()}}
}

func IsRemote(location string) bool {
	lower := strings.ToLower(strings.TrimSpace(location))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (f *Fetcher) Fetch(ctx context.Context, location string) (Document, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Document{}, fmt.Errorf("%w: no location configured", ErrUnavailable)
	}
	if IsRemote(location) {
		return f.fetchHTTP(ctx, location)
	}

	blob, err := os.ReadFile(location)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Document{Location: location, Name: filepath.Base(location), Blob: blob, FetchedAt: time.Now()}, nil
}

// Load fetches location and parses it into raw rows.
func (f *Fetcher) Load(ctx context.Context, location string) ([]internal.RawRow, Document, error) {
	doc, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, Document{}, err
	}
	rows, err := pipeline.ParseFile(doc.Name, doc.Blob)
	if err != nil {
		return nil, doc, fmt.Errorf("%w: parse %s: %v", ErrUnavailable, doc.Name, err)
	}
	return rows, doc, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string) (Document, error) {
	u, err := url.Parse(location)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "text/csv, */*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	}
	if len(body) > maxDocumentBytes {
		return Document{}, fmt.Errorf("%w: document larger than %d bytes", ErrUnavailable, maxDocumentBytes)
	}

	return Document{
		Location:  location,
		Name:      documentName(u, resp.Header.Get("Content-Type")),
		Blob:      body,
		FetchedAt: time.Now(),
	}, nil
}

// documentName keeps the URL's file name when it has an extension and
// otherwise derives one from the content type.
func documentName(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "source"
	}
	if path.Ext(name) != "" {
		return name
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return name
	}
	if ext, ok := contentTypeExt[mediaType]; ok {
		return name + ext
	}
	return name
}
