package http

import "github.com/labstack/echo/v4"

// Handler registers its routes on the server. Market and stream handlers implement it.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
