package gateway

import "strings"

// Navigator is the page the user is looking at. HardNavigate replaces the
// page outright instead of performing an in-app transition, so no in-memory
// page state survives a forced logout.
type Navigator interface {
	CurrentPath() string
	HardNavigate(path string)
}

// IsPublicRoute reports whether path is one of the public routes. Routes that
// end in "/" match as prefixes.
func IsPublicRoute(path string, routes []string) bool {
	for _, route := range routes {
		if strings.HasSuffix(route, "/") {
			if strings.HasPrefix(path, route) {
				return true
			}
			continue
		}
		if path == route {
			return true
		}
	}
	return false
}
