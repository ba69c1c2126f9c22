package utils

import (
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse sends a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string, details interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"details": details,
	})
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// PaginatedResponse sends a standardized paginated response
func PaginatedResponse(c *fiber.Ctx, status int, data interface{}, total int64, page, limit int) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"meta": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
