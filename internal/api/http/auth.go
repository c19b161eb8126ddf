package httpapi

import (
	"github.com/gofiber/fiber/v2"
)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *handlers) bindCredentials(c *fiber.Ctx) (credentialsRequest, error) {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return req, badRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return req, badRequest("Please provide all fields")
	}
	return req, nil
}

func (h *handlers) register(c *fiber.Ctx) error {
	req, err := h.bindCredentials(c)
	if err != nil {
		return err
	}
	u, err := h.auth.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return created(c, "User created successfully", u)
}

func (h *handlers) login(c *fiber.Ctx) error {
	req, err := h.bindCredentials(c)
	if err != nil {
		return err
	}
	token, u, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user":    u,
		"data":    u,
	})
}

func (h *handlers) me(c *fiber.Ctx) error {
	claims, found := claimsFrom(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	return ok(c, fiber.Map{
		"id":    claims.UserID,
		"email": claims.Email,
	})
}
