package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

// SessionAuth verifies a caller's access token when secret is set and
// stores its subject as the userID local. Requests without a token pass
// anonymously; a token that is present must verify. With an empty secret
// tokens are ignored.
func SessionAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if secret == "" || header == "" {
			return c.Next()
		}

		scheme, tokenString, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid authorization header format"))
		}

		sub, err := Subject(tokenString, secret)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		c.Locals("userID", sub)
		c.SetUserContext(context.WithValue(c.UserContext(), observability.UserIDKey, sub))
		return c.Next()
	}
}

// Subject validates an HMAC-signed token and returns its sub claim.
func Subject(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", models.NewUnauthorizedError("invalid token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", models.NewUnauthorizedError("missing subject")
	}
	return sub, nil
}

// CurrentUserID returns the subject stored by SessionAuth.
func CurrentUserID(c *fiber.Ctx) (string, bool) {
	uid, ok := c.Locals("userID").(string)
	return uid, ok && uid != ""
}
