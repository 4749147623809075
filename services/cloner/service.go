package cloner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gogs/chardet"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/customeros/mercure/config"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/tracing"
)

var headTag = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)

type Service struct {
	client   *http.Client
	maxBytes int64
}

func NewService(cfg *config.CloneConfig) *Service {
	return &Service{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
	}
}

// NewServiceWithClient is used when the caller owns the transport.
func NewServiceWithClient(client *http.Client, maxBytes int64) *Service {
	return &Service{client: client, maxBytes: maxBytes}
}

// Clone fetches rawURL and returns its html decoded to UTF-8 with a base tag
// pointing at the source, so relative resources keep resolving. The charset
// is detected from the body, never taken from response headers.
func (s *Service) Clone(ctx context.Context, rawURL string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "cloner.Clone")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	span.LogKV("url", rawURL)

	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	page, err := decode(body)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	if !strings.Contains(page, "<base") {
		page = injectBase(page, rawURL)
	}
	return page, nil
}

func (s *Service) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid url")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}

	// one byte past the limit tells a page of exactly maxBytes from a longer one
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	if int64(len(body)) > s.maxBytes {
		return nil, errors.Wrapf(mercure_errors.ErrPageTooLarge, "%s is larger than %d bytes", rawURL, s.maxBytes)
	}
	return body, nil
}

func decode(body []byte) (string, error) {
	result, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil {
		return "", errors.Wrap(err, "failed to detect charset")
	}

	name := strings.ToLower(result.Charset)
	if name == "utf-8" || name == "iso-8859-1" && isASCII(body) {
		return string(body), nil
	}

	encoding, _ := charset.Lookup(name)
	if encoding == nil {
		encoding, _ = charset.Lookup(strings.ReplaceAll(name, "-", ""))
	}
	if encoding == nil {
		return "", errors.Wrap(mercure_errors.ErrUnknownCharset, result.Charset)
	}

	decoded, err := encoding.NewDecoder().Bytes(body)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode %s", result.Charset)
	}
	return string(decoded), nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c > 0x7f {
			return false
		}
	}
	return true
}

func injectBase(page, rawURL string) string {
	loc := headTag.FindStringIndex(page)
	if loc == nil {
		return page
	}
	return page[:loc[1]] + `<base href="` + rawURL + `" />` + page[loc[1]:]
}
