package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/queryview"
	"github.com/starford/bones/internal/vibeservice"
)

// maxClassifyText bounds POST /classify bodies; posts are far shorter.
const maxClassifyText = 4096

// SetVibeRequest is the request body for a manual override.
type SetVibeRequest struct {
	Classification string `json:"classification" example:"negative" validate:"required"`
}

// Validate validates the request.
func (r SetVibeRequest) Validate() error {
	names := make([]any, 0, len(models.Classifications))
	for _, c := range models.Classifications {
		names = append(names, c.String())
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Classification, validation.Required, validation.In(names...)),
	)
}

// ClassifyRequest is the request body for classify-and-set.
type ClassifyRequest struct {
	Text string `json:"text" example:"It is a no bones day" validate:"required"`
}

// Validate validates the request.
func (r ClassifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required, validation.RuneLength(1, maxClassifyText)),
	)
}

// VibeResponse is the current view (aliased from the query layer).
type VibeResponse = queryview.Result

// ClassifyResponse is returned by POST /classify (aliased from the service layer).
type ClassifyResponse = vibeservice.ClassifyResult
