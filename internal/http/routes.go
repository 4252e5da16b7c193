package http

import "strings"

// RouteClass is the access class of a request path. Classification is
// ordered: public prefixes win over auth pages, auth pages over protected
// paths, and anything left over passes through untouched.
type RouteClass int

const (
	RoutePublic RouteClass = iota
	RouteAuth
	RouteProtected
	RouteOther
)

// publicPrefixes are always passed through, cookies or not. Health checks
// and the auth API must stay reachable for the sign-in flow to work at all.
var publicPrefixes = []string{
	"/api/health",
	"/api/auth",
}

// authPaths are the sign-in and registration pages. An already authenticated
// operator gets bounced off them to the dashboard root.
var authPaths = []string{
	"/auth/signin",
	"/auth/register",
}

// protectedPrefixes are the dashboard sections; the root is protected by
// exact match.
var protectedPrefixes = []string{
	"/sessions",
	"/equipment",
	"/analytics",
	"/alarms",
	"/reports",
	"/settings",
}

// Classify assigns a path to its route class.
func Classify(path string) RouteClass {
	for _, p := range publicPrefixes {
		if matchesPrefix(path, p) {
			return RoutePublic
		}
	}
	for _, p := range authPaths {
		if matchesPrefix(path, p) {
			return RouteAuth
		}
	}
	if path == "/" {
		return RouteProtected
	}
	for _, p := range protectedPrefixes {
		if matchesPrefix(path, p) {
			return RouteProtected
		}
	}
	return RouteOther
}

// matchesPrefix matches the path itself or any sub-path below it, so
// "/settings" covers "/settings/limits" but not "/settingsx".
func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
