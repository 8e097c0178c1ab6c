package handlers

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// WebhookPayload is the custom action callback body.
type WebhookPayload struct {
	Type          string       `json:"type"`
	InteractionID string       `json:"interaction_id"`
	ActionID      string       `json:"action_id"`
	Resource      ResourceRef  `json:"resource"`
	Project       ResourceRef  `json:"project"`
	User          ResourceRef  `json:"user"`
	Team          ResourceRef  `json:"team"`
	Data          *FormAnswers `json:"data,omitempty"`
}

type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

const (
	CopyExport = "export"
	CopyImport = "import"
)

// FormAnswers carries the values picked in the selection form. CopyType is
// only present when importing is enabled; an empty value means export.
type FormAnswers struct {
	CopyType    string `json:"copytype,omitempty"`
	Destination string `json:"destination"`
	ResourceID  string `json:"resource_id"`
	ObjectKey   string `json:"object_key,omitempty"`
}

func (a FormAnswers) IsImport() bool {
	return a.CopyType == CopyImport
}

func (p WebhookPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Resource),
		validation.Field(&p.Data),
	)
}

func (r ResourceRef) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 128)),
	)
}

func (a FormAnswers) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.CopyType, validation.In(CopyExport, CopyImport)),
		validation.Field(&a.ResourceID, validation.When(!a.IsImport(), validation.Required), validation.Length(1, 128)),
		validation.Field(&a.Destination, validation.Length(0, 128)),
		validation.Field(&a.ObjectKey, validation.When(a.IsImport(), validation.Required), validation.Length(1, 1024)),
	)
}

// FormResponse is the selection form returned when no answers are present.
type FormResponse struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Fields      []FormField `json:"fields"`
}

type FormField struct {
	Type    string       `json:"type"`
	Label   string       `json:"label"`
	Name    string       `json:"name"`
	Options []FormOption `json:"options,omitempty"`
}

type FormOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessageResponse is shown to the user after an action was accepted.
type MessageResponse struct {
	JobID       string `json:"job_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
