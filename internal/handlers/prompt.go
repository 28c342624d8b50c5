package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orpheus-edu/orpheus-core/internal/pipeline"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/taskpool"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

type PromptHandler struct {
	log      *logger.Logger
	pipeline *pipeline.Service
	pool     *taskpool.Pool
}

func NewPromptHandler(log *logger.Logger, pipelineSvc *pipeline.Service, pool *taskpool.Pool) *PromptHandler {
	return &PromptHandler{
		log:      log.With("handler", "PromptHandler"),
		pipeline: pipelineSvc,
		pool:     pool,
	}
}

type promptRequestBody struct {
	Prompt      string        `json:"prompt"`
	CourseID    string        `json:"courseId"`
	UserPersona types.Persona `json:"userPersona"`
}

type promptAcceptedResponse struct {
	PromptID string `json:"promptId"`
}

// POST /core/prompt
// Accept a study prompt and run the full pipeline in the background.
func (h *PromptHandler) SubmitPrompt(c *gin.Context) {
	var body promptRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if body.Prompt == "" || body.CourseID == "" {
		RespondError(c, http.StatusBadRequest, "missing_field",
			fmt.Errorf("prompt and courseId are required"))
		return
	}

	promptID := uuid.NewString()
	req := types.PromptRequest{
		PromptID:    promptID,
		CourseID:    body.CourseID,
		Prompt:      body.Prompt,
		UserPersona: body.UserPersona,
	}

	h.pool.Submit(func(ctx context.Context) {
		h.pipeline.Run(ctx, req)
	})

	h.log.Info("prompt accepted", "prompt_id", promptID, "course_id", body.CourseID)
	c.JSON(http.StatusAccepted, promptAcceptedResponse{PromptID: promptID})
}
