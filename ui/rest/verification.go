package rest

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	pkgError "github.com/tokengate/tokengate/pkg/error"
	"github.com/tokengate/tokengate/pkg/utils"
	"github.com/tokengate/tokengate/verification/application"
	"github.com/tokengate/tokengate/verification/domain"
)

type Verification struct {
	Engine     *application.Engine
	Reconciler *application.Reconciler
	Nonces     domain.NonceStore
	NonceTTL   time.Duration
}

func InitRestVerification(app fiber.Router, engine *application.Engine, reconciler *application.Reconciler, nonces domain.NonceStore, nonceTTL time.Duration) Verification {
	rest := Verification{Engine: engine, Reconciler: reconciler, Nonces: nonces, NonceTTL: nonceTTL}
	app.Get("/verify/challenge", rest.Challenge)
	app.Post("/verify", rest.Verify)
	app.Post("/verify/recheck", rest.Recheck)

	return rest
}

// Challenge issues a fresh single-use nonce for the requesting user,
// superseding any pending one.
func (handler *Verification) Challenge(c *fiber.Ctx) error {
	var request challengeRequest
	if err := c.QueryParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if err := request.Validate(); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	token, err := handler.Nonces.Create(c.UserContext(), request.UserID, request.MessageID, request.ChannelID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Challenge issued",
		Results: map[string]any{
			"nonce":      token,
			"expires_in": int(handler.NonceTTL.Seconds()),
		},
	})
}

// Verify is the single verification entry point: signed challenge in, granted
// roles out. Challenge/signature failures map to 400, everything else to 500.
func (handler *Verification) Verify(c *fiber.Ctx) error {
	var request verifyRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if err := request.Validate(); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	result, err := handler.Engine.VerifySignatureFlow(c.UserContext(), request.Data, request.Signature)
	utils.PanicIfNeeded(mapVerifyError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: result.Message,
		Results: map[string]any{
			"message":       result.Message,
			"address":       result.Address,
			"assignedRoles": result.AssignedRoles,
		},
	})
}

// Recheck re-verifies one user's active assignments on demand.
func (handler *Verification) Recheck(c *fiber.Ctx) error {
	var request struct {
		UserID   string `json:"user_id"`
		ServerID string `json:"server_id"`
	}
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if request.UserID == "" || request.ServerID == "" {
		utils.PanicIfNeeded(pkgError.ValidationError("user_id and server_id are required"))
	}

	result, err := handler.Reconciler.ReverifyUser(c.UserContext(), request.UserID, request.ServerID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Re-verification complete",
		Results: result,
	})
}

// mapVerifyError translates engine errors into typed API errors with a
// sanitized, user-safe message. Unknown errors pass through and surface as
// 500 via the recovery middleware.
func mapVerifyError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrInvalidNonce),
		errors.Is(err, domain.ErrExpiredChallenge),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrNoQualifyingRules),
		errors.Is(err, domain.ErrNoMatchingHoldings):
		return pkgError.ChallengeError(err.Error())
	}
	return err
}
