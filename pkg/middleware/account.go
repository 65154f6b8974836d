package middleware

import (
	"regexp"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

const accountIDKey = "account_id"

var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AccountID validates the :id route parameter and stores it for handlers
// and the access log.
func AccountID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !accountIDPattern.MatchString(id) {
			return apperrors.ErrValidation.WithDetails("account id must be 1-64 characters of letters, digits, '-' or '_'")
		}
		c.Locals(accountIDKey, id)
		return c.Next()
	}
}

func GetAccountID(c *fiber.Ctx) string {
	id, _ := c.Locals(accountIDKey).(string)
	return id
}
