package rest

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tokengate/tokengate/verification/application"
)

// verifyRequest is the wire contract of the single verification entry point:
// the signed challenge fields plus the signature hex.
type verifyRequest struct {
	Data      application.SignPayload `json:"data"`
	Signature string                  `json:"signature"`
}

func (r verifyRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Signature, validation.Required, validation.Length(132, 132).Error("signature must be a 65-byte hex string")),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&r.Data,
		validation.Field(&r.Data.UserID, validation.Required),
		validation.Field(&r.Data.ServerID, validation.Required),
		validation.Field(&r.Data.Nonce, validation.Required),
		validation.Field(&r.Data.Expiry, validation.Required),
	)
}

type challengeRequest struct {
	UserID    string `json:"user_id" query:"user_id"`
	MessageID string `json:"message_id" query:"message_id"`
	ChannelID string `json:"channel_id" query:"channel_id"`
}

func (r challengeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
	)
}

type createRuleRequest struct {
	ServerID       string `json:"server_id"`
	ChannelID      string `json:"channel_id"`
	CollectionSlug string `json:"slug"`
	AttributeKey   string `json:"attribute_key"`
	AttributeValue string `json:"attribute_value"`
	MinItems       int    `json:"min_items"`
	RoleID         string `json:"role_id"`
}

func (r createRuleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ServerID, validation.Required),
		validation.Field(&r.RoleID, validation.Required),
		validation.Field(&r.MinItems, validation.Min(0)),
	)
}

type ruleResponse struct {
	ID             string `json:"id"`
	ServerID       string `json:"server_id"`
	ChannelID      string `json:"channel_id,omitempty"`
	CollectionSlug string `json:"slug"`
	AttributeKey   string `json:"attribute_key"`
	AttributeValue string `json:"attribute_value"`
	MinItems       int    `json:"min_items"`
	RoleID         string `json:"role_id"`
}
