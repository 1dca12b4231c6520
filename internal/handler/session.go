package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-find/internal/middleware"
)

// Session reports whether the caller holds a usable session. It sits
// behind the optional session middleware, so a missing or broken token
// is not an error here: the response simply says the request is
// anonymous. Clients use it to decide whether to render a login form.
func Session(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"authenticated": false})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"authenticated": true,
		"user":          toPayload(u),
	})
}
