package bridge

import "github.com/gofiber/fiber/v2"

// Errors returned by Send. They carry HTTP status codes so API handlers
// can return them directly.
var (
	ErrPageNotFound = fiber.NewError(fiber.StatusNotFound, "page not connected")
	ErrPageGone     = fiber.NewError(fiber.StatusGone, "page connection closed")
)
