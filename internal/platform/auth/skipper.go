package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are the routes reachable without an access token.
var publicPaths = map[string]bool{
	"/health":                true,
	"/health/db":             true,
	"/api/v1/users/register": true,
	"/api/v1/users/login":    true,
	"/api/v1/users/refresh":  true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. It matches the registered route pattern, not the raw URL.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
