package middleware

import "github.com/labstack/echo/v4"

// userID returns the account id of the signed-in caller, or "guest".
func userID(c echo.Context) string {
	if cl, ok := ClaimsFrom(c); ok && cl.AccountID != "" {
		return cl.AccountID
	}
	return "guest"
}
