package config

import (
	"net/url"
	"strings"
)

type Cors struct {
	vars *EnvVars
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetHostOrigin is the origin of BASE_URL, the only origin dashboard pages
// are served from.
func (c Cors) GetHostOrigin() string {
	return OriginOf(c.vars.GetBaseURL())
}

// GetAllowedOrigins lists the origins allowed to call the popup endpoints:
// the host itself plus ALLOWED_ORIGINS.
func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	if host := c.GetHostOrigin(); host != "" {
		origins[host] = nullValue{}
	}
	for _, o := range c.vars.AllowedOrigins {
		if o = OriginOf(o); o != "" {
			origins[o] = nullValue{}
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return "POST, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type"
}

// OriginOf reduces rawURL to scheme://host[:port]. Wildcards and
// unparseable values give "".
func OriginOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
