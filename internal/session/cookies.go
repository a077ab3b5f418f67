package session

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"review_radar/internal/domain"
)

// ParseCookieHeader turns an operator-supplied "k=v; k2=v2" string into a TokenSet
// scoped to domain. Malformed pairs are skipped.
func ParseCookieHeader(header, domainName string) domain.TokenSet {
	var ts domain.TokenSet
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		ts = append(ts, domain.Token{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domainName,
			Path:   "/",
		})
	}
	return ts
}

// Header renders ts the way a browser sends it.
func Header(ts domain.TokenSet) string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(t.Name)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

func ToCookies(ts domain.TokenSet) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(ts))
	for _, t := range ts {
		c := &http.Cookie{
			Name:     t.Name,
			Value:    t.Value,
			Domain:   t.Domain,
			Path:     t.Path,
			Secure:   t.Secure,
			HttpOnly: t.HTTPOnly,
		}
		if t.Expires > 0 {
			c.Expires = time.Unix(t.Expires, 0)
		}
		out = append(out, c)
	}
	return out
}

func FromCookies(cs []*http.Cookie) domain.TokenSet {
	ts := make(domain.TokenSet, 0, len(cs))
	for _, c := range cs {
		t := domain.Token{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			t.Expires = c.Expires.Unix()
		}
		ts = append(ts, t)
	}
	return ts
}

// Jar is the subset of http.CookieJar used to seed and harvest a client session.
type Jar interface {
	SetCookies(u *url.URL, cookies []*http.Cookie)
	Cookies(u *url.URL) []*http.Cookie
}

// Restore seeds jar with ts for u.
func Restore(jar Jar, u *url.URL, ts domain.TokenSet) {
	if len(ts) == 0 {
		return
	}
	jar.SetCookies(u, ToCookies(ts))
}

// Harvest reads the cookies jar would send to u. The jar drops domain and path
// on the way out, so they are refilled from u.
func Harvest(jar Jar, u *url.URL) domain.TokenSet {
	ts := FromCookies(jar.Cookies(u))
	for i := range ts {
		if ts[i].Domain == "" {
			ts[i].Domain = u.Hostname()
		}
		if ts[i].Path == "" {
			ts[i].Path = "/"
		}
	}
	return ts
}

// Merge folds harvested into restored. A harvested token matching a restored one
// by name only updates its value, since the jar does not report expiry, flags or
// the original domain. Unknown names are appended. changed is false when the
// result equals restored.
func Merge(restored, harvested domain.TokenSet) (merged domain.TokenSet, changed bool) {
	merged = slices.Clone(restored)
	for _, h := range harvested {
		i := slices.IndexFunc(merged, func(t domain.Token) bool { return t.Name == h.Name })
		if i < 0 {
			merged = append(merged, h)
			changed = true
			continue
		}
		if merged[i].Value != h.Value {
			merged[i].Value = h.Value
			changed = true
		}
	}
	return merged, changed
}
