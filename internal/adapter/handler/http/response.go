package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/pkg/errors"
	"go.uber.org/zap"
)

// respondError writes err as {"error", "code"}. Only AppError messages reach
// the client; anything else is reported as a generic internal error.
func respondError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.NewAppError(errors.ErrInternal, "Internal server error", err)
	}
	status := errors.ToHTTPStatus(appErr.Code())

	if status >= http.StatusInternalServerError {
		errors.LogError(logger, err, msg,
			zap.String("path", c.Request().URL.Path),
			zap.String("user_id", userIDOf(c)))
	} else {
		logger.Info(msg,
			zap.String("path", c.Request().URL.Path),
			zap.String("error_code", appErr.Code()),
			zap.Error(err))
	}

	var limited *domainErrors.RateLimitedError
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	return c.JSON(status, echo.Map{
		"error": appErr.Message(),
		"code":  appErr.Code(),
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"error": message,
		"code":  errors.ErrInvalidArgument,
	})
}

func userIDOf(c echo.Context) string {
	userID, _ := c.Get("user_id").(string)
	return userID
}

// bindAndValidate decodes the body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.NewAppError(errors.ErrInvalidArgument, "Invalid request body", err)
	}
	if err := c.Validate(req); err != nil {
		return errors.NewAppError(errors.ErrInvalidArgument, "Invalid request", err)
	}
	return nil
}
