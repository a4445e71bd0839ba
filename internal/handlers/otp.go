package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/appointment-gateway/internal/middleware"
	"github.com/Ananth-NQI/appointment-gateway/internal/models"
	"github.com/Ananth-NQI/appointment-gateway/internal/services"
)

// OTPHandler serves the one-time passcode lifecycle.
type OTPHandler struct {
	otp *services.OTPService
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(otp *services.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

type generateOTPRequest struct {
	AccountNumber string `json:"account_number" validate:"required,min=5,max=50"`
	Email         string `json:"email" validate:"required,email,max=255"`
	Mobile        string `json:"mobile" validate:"required,min=10,max=15"`
	SendType      string `json:"send_type" validate:"omitempty,oneof=email sms both"`
}

type resendOTPRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
}

type verifyOTPRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
	OTPCode       string `json:"otp_code" validate:"required,numeric,min=4,max=9"`
}

// Generate issues and delivers a fresh code.
func (h *OTPHandler) Generate(c *fiber.Ctx) error {
	var req generateOTPRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.otp.Generate(c.UserContext(), services.GenerateRequest{
		AccountNumber: req.AccountNumber,
		Email:         req.Email,
		Mobile:        req.Mobile,
		SendType:      models.SendType(req.SendType),
	})
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "OTP sent successfully", result)
}

// Resend redelivers the active code.
func (h *OTPHandler) Resend(c *fiber.Ctx) error {
	var req resendOTPRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.otp.Resend(c.UserContext(), req.AccountNumber)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "OTP resent successfully", result)
}

// Verify checks a submitted code.
func (h *OTPHandler) Verify(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.otp.Verify(c.UserContext(), req.AccountNumber, req.OTPCode); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "OTP verified successfully", nil)
}

// Status reports the remaining daily quota for an account.
func (h *OTPHandler) Status(c *fiber.Ctx) error {
	status, err := h.otp.Status(c.UserContext(), c.Params("accountNumber"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "OTP status retrieved successfully", status)
}
