package dto

// Visit is the request context recorded for every tracked hit.
type Visit struct {
	IP           string
	ForwardedFor []string
	UserAgent    string
	Referer      string
	Host         string
	Raw          string
}
