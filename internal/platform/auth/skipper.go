package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes that bypass authentication.
var publicPaths = map[string]bool{
	"/health":              true,
	"/metrics":             true,
	"/api/v1/openapi.json": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Pass it as JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given route bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
