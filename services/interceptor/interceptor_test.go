package interceptor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mercure/config"
)

func newTestInterceptor(hostname string) *Interceptor {
	return NewInterceptor(&config.AppConfig{
		Hostname:      hostname,
		PostDomain:    "MERCURE_POST_DOMAIN",
		PostTrackerID: "MERCURE_POST_TRACKER_ID",
	})
}

func hiddenValue(t *testing.T, page, name string) string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	inputs := doc.Find(inputSelector(name))
	require.Equal(t, 1, inputs.Length(), "expected exactly one %s input", name)
	value, _ := inputs.Attr("value")
	return value
}

func TestIntercept_ResolvesSpecialActions(t *testing.T) {
	i := newTestInterceptor("http://localhost")

	cases := map[string]string{
		".":                    "http://x.com/y",
		"/":                    "http://x.com",
		"/path":                "http://x.com/path",
		"https://other.com/go": "https://other.com/go",
		"":                     "",
	}
	for action, expected := range cases {
		t.Run(action, func(t *testing.T) {
			out, err := i.Intercept(`<html><body><form action="`+action+`"><input name="user"></form></body></html>`, "http://x.com/y")
			require.NoError(t, err)
			assert.Equal(t, expected, hiddenValue(t, out, RealActionField))
			assert.Equal(t, "http://x.com/y", hiddenValue(t, out, RedirectURLField))
		})
	}
}

func TestIntercept_RewritesLiveAction(t *testing.T) {
	out, err := newTestInterceptor("http://localhost").Intercept(`<form action="/login"></form>`, "http://x.com/y")
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	action, _ := doc.Find("form").Attr("action")
	assert.Equal(t, "http://MERCURE_POST_DOMAIN/landing-page/post/MERCURE_POST_TRACKER_ID", action)
}

func TestIntercept_HTTPSHostname(t *testing.T) {
	i := newTestInterceptor("https://phish.example.com")
	assert.Equal(t, "https://MERCURE_POST_DOMAIN/landing-page/post/MERCURE_POST_TRACKER_ID", i.PostAction())
}

func TestIntercept_NoRedirectURLKeepsActionVerbatim(t *testing.T) {
	out, err := newTestInterceptor("http://localhost").Intercept(`<form action="/login"></form>`, "")
	require.NoError(t, err)
	assert.Equal(t, "/login", hiddenValue(t, out, RealActionField))
	assert.Equal(t, "/login", hiddenValue(t, out, RedirectURLField))
}

func TestIntercept_Idempotent(t *testing.T) {
	i := newTestInterceptor("http://localhost")
	pages := []string{
		`<html><head><title>x</title></head><body><form action="."><input name="a"></form><form></form></body></html>`,
		`<form action="/p"><input type="password" name="pw"/></form>`,
		`<p>no forms here</p>`,
		`<!DOCTYPE html><html><body><form action="http://a.b/c?d=e&amp;f=g"><button>go</button></form></body></html>`,
	}
	for _, page := range pages {
		once, err := i.Intercept(page, "http://x.com/y")
		require.NoError(t, err)
		twice, err := i.Intercept(once, "http://x.com/y")
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestIntercept_KeepsExistingHiddenInputs(t *testing.T) {
	page := `<form action="http://MERCURE_POST_DOMAIN/landing-page/post/MERCURE_POST_TRACKER_ID">` +
		`<input type="hidden" name="mercure_real_action_url" value="http://real">` +
		`<input type="hidden" name="mercure_redirect_url" value="http://orig"></form>`
	out, err := newTestInterceptor("http://localhost").Intercept(page, "http://x.com/y")
	require.NoError(t, err)
	assert.Equal(t, "http://real", hiddenValue(t, out, RealActionField))
	assert.Equal(t, "http://orig", hiddenValue(t, out, RedirectURLField))
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "http://x.com:8080", originOf("http://x.com:8080/a/b"))
	assert.Equal(t, "http://x.com", originOf("http://x.com"))
	assert.Equal(t, "", originOf(""))
}
