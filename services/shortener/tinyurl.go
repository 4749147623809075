package shortener

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/internal/tracing"
)

// TinyURL shortens links through the tinyurl.com create api, which answers
// with the short link as plain text.
type TinyURL struct {
	endpoint string
	client   *http.Client
}

func NewTinyURL(endpoint string) *TinyURL {
	return &TinyURL{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TinyURL) Shorten(ctx context.Context, longURL string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TinyURL.Shorten")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if longURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?url="+url.QueryEscape(longURL), nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to build shortener request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "shortener request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to read shortener response")
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("shortener returned %d", resp.StatusCode)
		tracing.TraceErr(span, err)
		return "", err
	}

	short := strings.TrimSpace(string(body))
	if !strings.HasPrefix(short, "http") {
		err = fmt.Errorf("unexpected shortener response %q", short)
		tracing.TraceErr(span, err)
		return "", err
	}
	return short, nil
}
