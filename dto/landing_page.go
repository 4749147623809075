package dto

// LandingPageResult is either a rendered page or a redirect.
type LandingPageResult struct {
	HTML        string
	RedirectURL string
}

func (r *LandingPageResult) IsRedirect() bool {
	return r.RedirectURL != ""
}
