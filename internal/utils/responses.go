package utils

import (
	"errors"
	"net/http"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/gofiber/fiber/v2"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func SendJSON(c *fiber.Ctx, statusCode int, data interface{}) error {
	return c.Status(statusCode).JSON(data)
}

func SendSuccess(c *fiber.Ctx, data interface{}) error {
	return SendJSON(c, http.StatusOK, Envelope{Success: true, Data: data})
}

func SendCreated(c *fiber.Ctx, data interface{}) error {
	return SendJSON(c, http.StatusCreated, Envelope{Success: true, Data: data})
}

func SendError(c *fiber.Ctx, statusCode int, code, message string) error {
	return SendJSON(c, statusCode, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

func SendBadRequest(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func SendUnauthorized(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func SendNotFound(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusNotFound, "NOT_FOUND", message)
}

func SendConflict(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusConflict, "CONFLICT", message)
}

// SendLedgerError maps ledger sentinel errors onto HTTP statuses.
func SendLedgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, types.ErrAccountNotFound), errors.Is(err, types.ErrEventNotFound):
		return SendNotFound(c, err.Error())
	case errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrInvalidEvent),
		errors.Is(err, types.ErrInvalidIdentity),
		errors.Is(err, types.ErrEmptyMessage):
		return SendBadRequest(c, err.Error())
	case errors.Is(err, types.ErrDuplicateLink), errors.Is(err, types.ErrEmailTaken):
		return SendConflict(c, err.Error())
	case errors.Is(err, types.ErrInvalidCredentials), errors.Is(err, types.ErrSessionNotFound):
		return SendUnauthorized(c, err.Error())
	case errors.Is(err, types.ErrResponseGeneratorUnavailable):
		return SendError(c, http.StatusServiceUnavailable, "GENERATOR_UNAVAILABLE", "response generator unavailable")
	default:
		return SendError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal error")
	}
}
