package tracker

import (
	"net"
	"net/http"
	"strings"

	"github.com/customeros/mercure/dto"
)

// VisitFromRequest reads the client ip from the first X-Forwarded-For hop,
// falling back to the connection address.
func VisitFromRequest(r *http.Request, raw string) dto.Visit {
	visit := dto.Visit{
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Host:      r.Host,
		Raw:       raw,
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, hop := range strings.Split(forwarded, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				visit.ForwardedFor = append(visit.ForwardedFor, hop)
			}
		}
		if len(visit.ForwardedFor) > 0 {
			visit.IP = visit.ForwardedFor[0]
		}
	}

	if visit.IP == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		visit.IP = host
	}
	return visit
}
