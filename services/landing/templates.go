package landing

import (
	"fmt"
	"html/template"
	"strings"
)

// navigatorScript posts what the browser reports about itself back to the
// tracker, where it is stored on the newest visit row.
const navigatorScript = `<script type="text/javascript">
(function () {
  var n = window.navigator || {};
  var infos = {
    userAgent: n.userAgent, platform: n.platform, language: n.language,
    languages: n.languages, cookieEnabled: n.cookieEnabled, doNotTrack: n.doNotTrack,
    hardwareConcurrency: n.hardwareConcurrency,
    screen: window.screen ? window.screen.width + "x" + window.screen.height : null,
    timezone: (new Date()).getTimezoneOffset(),
    plugins: Array.prototype.map.call(n.plugins || [], function (p) { return p.name; })
  };
  var xhr = new XMLHttpRequest();
  xhr.open("POST", "%s", true);
  xhr.setRequestHeader("Content-Type", "application/x-www-form-urlencoded");
  xhr.send("infos=" + encodeURIComponent(JSON.stringify(infos)));
})();
</script>`

func navigatorInfos(endpoint string) string {
	return fmt.Sprintf(navigatorScript, endpoint)
}

// insertBeforeBody puts snippet in front of the last closing body tag, or at
// the end of the document when there is none.
func insertBeforeBody(html, snippet string) string {
	idx := strings.LastIndex(strings.ToLower(html), "</body>")
	if idx < 0 {
		return html + snippet
	}
	return html[:idx] + snippet + html[idx:]
}

var replayTemplate = template.Must(template.New("replay").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title></title>
</head>
<body>
<form id="mercure-replay" method="POST" action="{{ .Action }}" data-redirect-url="{{ .RedirectURL }}">
{{- range .Fields }}
<input type="hidden" name="{{ .Name }}" value="{{ .Value }}" />
{{- end }}
</form>
<noscript><a href="{{ .RedirectURL }}">Continue</a></noscript>
<script type="text/javascript">document.getElementById("mercure-replay").submit();</script>
</body>
</html>
`))

type replayField struct {
	Name  string
	Value string
}

type replayPage struct {
	Action      string
	RedirectURL string
	Fields      []replayField
}
