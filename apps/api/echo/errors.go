package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/media"
	"github.com/Marwebofficial/studio-sub000/core/quiz"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	errMediaUnavailable     = echo.NewHTTPError(http.StatusServiceUnavailable, "media generation is not available")
	errBadGateway           = echo.NewHTTPError(http.StatusBadGateway, "the generated content was invalid, please retry")
)

// domainError maps the sentinel errors of the core packages to their HTTP response.
func domainError(cause error) *echo.HTTPError {
	switch cause {
	case chat.ErrNotFound:
		return errHttpNotFound
	case media.ErrNotConfigured:
		return errMediaUnavailable
	case quiz.ErrInvalidQuiz:
		return errBadGateway
	}
	return nil
}

// newAppHTTPErrorHandler returns an echo.HTTPErrorHandler rendering every error as JSON.
// Unexpected errors are reported as 500 and logged with the authenticated user, if any.
// signalShutdown is called whenever a core shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message := errorResponse(err, translator)

		if code == http.StatusInternalServerError {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(http.StatusText(code), err, usr)

			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// a started answer stream reports its own failures
		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

// errorResponse returns the status code and the body of err.
// The body is a field -> message map for validation errors, a message otherwise.
func errorResponse(err error, translator ut.Translator) (int, interface{}) {
	cause := errors.Cause(err)
	if herr := domainError(cause); herr != nil {
		return herr.Code, herr.Message
	}

	switch origErr := cause.(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, origErr.Message
		}
		if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
			origErr = herr
		}
		return origErr.Code, origErr.Message
	case validator.ValidationErrors:
		return http.StatusBadRequest, core.TranslateErrors(origErr, translator)
	case *core.ValidationError:
		if origErr.Fields == nil {
			return http.StatusBadRequest, origErr.Error()
		}
		fldErrs := make(map[string]string, len(origErr.Fields))
		for _, fErr := range origErr.Fields {
			fldErrs[fErr.Field] = fErr.Error
		}
		return http.StatusBadRequest, fldErrs
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
