// Package fetcher resolves submitted sources to transient local artifacts.
//
// Upload references are validated in place; remote URLs are downloaded,
// with HTML pages reduced to readable markdown before transcription-free
// generation.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
)

// maxDownloadBytes caps remote downloads.
const maxDownloadBytes = 512 << 20

// Service implements the Fetcher collaborator against local uploads and
// remote URLs.
type Service struct {
	artifactDir string
	httpClient  *http.Client
	converter   *md.Converter
	logger      arbor.ILogger
}

// NewService creates a new fetcher service rooted at the artifact directory.
func NewService(artifactDir string, logger arbor.ILogger) *Service {
	return &Service{
		artifactDir: artifactDir,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		converter:   md.NewConverter("", true, nil),
		logger:      logger,
	}
}

// Fetch resolves the source reference to a local artifact.
func (s *Service) Fetch(ctx context.Context, sourceRef string, durationLimitSeconds int) (*interfaces.Artifact, error) {
	if strings.HasPrefix(sourceRef, "http://") || strings.HasPrefix(sourceRef, "https://") {
		return s.fetchURL(ctx, sourceRef)
	}
	return s.fetchUpload(sourceRef)
}

// fetchUpload validates an already-uploaded file inside the artifact dir.
func (s *Service) fetchUpload(sourceRef string) (*interfaces.Artifact, error) {
	path := sourceRef
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.artifactDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("uploaded file not found: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("uploaded source is a directory: %s", sourceRef)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("uploaded file is empty: %s", sourceRef)
	}
	if info.Size() > maxDownloadBytes {
		return nil, fmt.Errorf("uploaded file exceeds size limit: %d bytes", info.Size())
	}

	return &interfaces.Artifact{Ref: path}, nil
}

// fetchURL downloads a remote source. HTML responses are reduced to
// markdown text; anything else is streamed to a file as-is.
func (s *Service) fetchURL(ctx context.Context, sourceRef string) (*interfaces.Artifact, error) {
	parsed, err := url.Parse(sourceRef)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid source URL: %s", sourceRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "threadforge/"+common.GetVersion())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	body := io.LimitReader(resp.Body, maxDownloadBytes+1)

	if strings.Contains(contentType, "text/html") {
		return s.saveHTML(body, sourceRef)
	}
	return s.saveRaw(body, parsed)
}

// saveHTML extracts readable page text and stores it as markdown.
func (s *Service) saveHTML(body io.Reader, sourceRef string) (*interfaces.Artifact, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	selection := doc.Find("article")
	if selection.Length() == 0 {
		selection = doc.Find("main")
	}
	if selection.Length() == 0 {
		selection = doc.Find("body")
	}

	html, err := selection.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to extract page content: %w", err)
	}

	markdown, err := s.converter.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("failed to convert page to markdown: %w", err)
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("page contains no readable content: %s", sourceRef)
	}

	path := filepath.Join(s.artifactDir, common.NewID()+".md")
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return nil, fmt.Errorf("failed to store page content: %w", err)
	}

	s.logger.Debug().
		Str("url", sourceRef).
		Str("artifact", path).
		Int("bytes", len(markdown)).
		Msg("Page content fetched")
	return &interfaces.Artifact{Ref: path}, nil
}

// saveRaw streams a non-HTML response to the artifact directory.
func (s *Service) saveRaw(body io.Reader, parsed *url.URL) (*interfaces.Artifact, error) {
	ext := filepath.Ext(parsed.Path)
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(s.artifactDir, common.NewID()+ext)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, body)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to download source: %w", err)
	}
	if written > maxDownloadBytes {
		os.Remove(path)
		return nil, fmt.Errorf("source exceeds size limit")
	}

	s.logger.Debug().
		Str("url", parsed.String()).
		Str("artifact", path).
		Int64("bytes", written).
		Msg("Source downloaded")
	return &interfaces.Artifact{Ref: path}, nil
}

var _ interfaces.Fetcher = (*Service)(nil)
