package interceptor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/internal/routes"
)

const (
	RealActionField  = "mercure_real_action_url"
	RedirectURLField = "mercure_redirect_url"
)

// Interceptor rewrites every form of a page so that submissions land on the
// post capture endpoint first. The original destination travels along in
// two hidden inputs.
type Interceptor struct {
	postDomain string
	postAction string
}

func NewInterceptor(cfg *config.AppConfig) *Interceptor {
	scheme := "http"
	if strings.HasPrefix(cfg.Hostname, "https") {
		scheme = "https"
	}
	return &Interceptor{
		postDomain: cfg.PostDomain,
		postAction: scheme + "://" + cfg.PostDomain + routes.LandingPagePostPath(cfg.PostTrackerID),
	}
}

// PostAction is the form action written into intercepted pages, still
// holding the domain and tracker id placeholders.
func (i *Interceptor) PostAction() string {
	return i.postAction
}

// Intercept is idempotent: forms already pointing at the post domain keep
// their action and hidden inputs are only added when missing.
func (i *Interceptor) Intercept(page, redirectURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse html")
	}

	origin := originOf(redirectURL)

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")

		if redirectURL != "" {
			switch {
			case action == ".":
				action = redirectURL
			case action == "/":
				action = origin
			case strings.HasPrefix(action, "/"):
				action = origin + action
			}
		}

		if live, _ := form.Attr("action"); !strings.Contains(live, i.postDomain) {
			form.SetAttr("action", i.postAction)
		}

		if form.Find(inputSelector(RealActionField)).Length() == 0 {
			form.AppendNodes(hiddenInput(RealActionField, action))
		}

		if form.Find(inputSelector(RedirectURLField)).Length() == 0 {
			value := redirectURL
			if value == "" {
				value = action
			}
			form.AppendNodes(hiddenInput(RedirectURLField, value))
		}
	})

	out, err := doc.Html()
	if err != nil {
		return "", errors.Wrap(err, "failed to render html")
	}
	return out, nil
}

// originOf keeps scheme, host and port: "http://x.com:8080/a/b" gives
// "http://x.com:8080".
func originOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parts := strings.Split(rawURL, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}

func inputSelector(name string) string {
	return `input[name="` + name + `"]`
}

func hiddenInput(name, value string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Input,
		Data:     "input",
		Attr: []html.Attribute{
			{Key: "type", Val: "hidden"},
			{Key: "name", Val: name},
			{Key: "value", Val: value},
		},
	}
}
