package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/nyota/internal/services"
)

// httpError maps domain errors onto HTTP statuses. Unrecognized errors pass
// through for the app-level handler to render as 500.
func httpError(err error) error {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		conflict   *services.ConflictError
		transition *services.InvalidTransitionError
		gateway    *services.GatewayError
		authz      *services.AuthorizationError
	)

	switch {
	case errors.As(err, &validation):
		return fiber.NewError(fiber.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		return fiber.NewError(fiber.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		return fiber.NewError(fiber.StatusConflict, conflict.Error())
	case errors.As(err, &transition):
		return fiber.NewError(fiber.StatusConflict, transition.Error())
	case errors.As(err, &gateway):
		return fiber.NewError(fiber.StatusBadGateway, "payment provider unavailable")
	case errors.As(err, &authz):
		return fiber.NewError(fiber.StatusForbidden, authz.Error())
	default:
		return err
	}
}
