package rest

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	pkgError "github.com/tokengate/tokengate/pkg/error"
	"github.com/tokengate/tokengate/pkg/utils"
	"github.com/tokengate/tokengate/verification/domain"
)

type Rules struct {
	Repo domain.RuleRepository
}

func InitRestRules(app fiber.Router, repo domain.RuleRepository) Rules {
	rest := Rules{Repo: repo}
	app.Get("/admin/rules", rest.List)
	app.Post("/admin/rules", rest.Create)
	app.Delete("/admin/rules/:id", rest.Delete)

	return rest
}

func toRuleResponse(r *domain.Rule) ruleResponse {
	channel := ""
	if !r.ChannelID.IsWildcard() {
		channel = r.ChannelID.Value()
	}
	return ruleResponse{
		ID:             r.ID,
		ServerID:       r.ServerID,
		ChannelID:      channel,
		CollectionSlug: r.CollectionSlug.Sentinel(),
		AttributeKey:   r.AttributeKey.Sentinel(),
		AttributeValue: r.AttributeValue.Sentinel(),
		MinItems:       r.MinItems,
		RoleID:         r.RoleID,
	}
}

func (handler *Rules) List(c *fiber.Ctx) error {
	serverID := c.Query("server_id")
	if serverID == "" {
		utils.PanicIfNeeded(pkgError.ValidationError("server_id is required"))
	}

	rules, err := handler.Repo.ListByServer(c.UserContext(), serverID)
	utils.PanicIfNeeded(err)

	out := make([]ruleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleResponse(r))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Rules fetched",
		Results: out,
	})
}

func (handler *Rules) Create(c *fiber.Ctx) error {
	var request createRuleRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if err := request.Validate(); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	rule := &domain.Rule{
		ServerID:       request.ServerID,
		ChannelID:      domain.CriterionFrom(request.ChannelID),
		CollectionSlug: domain.CriterionFrom(request.CollectionSlug),
		AttributeKey:   domain.CriterionFrom(request.AttributeKey),
		AttributeValue: domain.CriterionFrom(request.AttributeValue),
		MinItems:       request.MinItems,
		RoleID:         request.RoleID,
	}
	utils.PanicIfNeeded(handler.Repo.Create(c.UserContext(), rule))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Rule created",
		Results: toRuleResponse(rule),
	})
}

func (handler *Rules) Delete(c *fiber.Ctx) error {
	err := handler.Repo.Delete(c.UserContext(), c.Params("id"))
	if errors.Is(err, domain.ErrRuleNotFound) {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Rule deleted",
		Results: nil,
	})
}
