package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are served without credentials even when auth is on.
var publicPaths = map[string]bool{
	"/":             true,
	"/health":       true,
	"/health/db":    true,
	"/docs":         true,
	"/openapi.json": true,
	"/metrics":      true,
}

// AuthSkipper matches on the registered route path, not the raw URL.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
