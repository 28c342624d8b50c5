package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orpheus-edu/orpheus-core/internal/clients/postprocessing"
	"github.com/orpheus-edu/orpheus-core/internal/jobs"
	"github.com/orpheus-edu/orpheus-core/internal/pipeline"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/taskpool"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

type SlidesHandler struct {
	log      *logger.Logger
	pipeline *pipeline.Service
	jobs     *jobs.Manager
	pp       postprocessing.Client
	pool     *taskpool.Pool
}

func NewSlidesHandler(
	log *logger.Logger,
	pipelineSvc *pipeline.Service,
	jobManager *jobs.Manager,
	ppClient postprocessing.Client,
	pool *taskpool.Pool,
) *SlidesHandler {
	return &SlidesHandler{
		log:      log.With("handler", "SlidesHandler"),
		pipeline: pipelineSvc,
		jobs:     jobManager,
		pp:       ppClient,
		pool:     pool,
	}
}

type slidesGenerateBody struct {
	CourseID      string               `json:"courseId"`
	PromptID      string               `json:"promptId"`
	LectureScript string               `json:"lectureScript"`
	User          types.Persona        `json:"user"`
	Assets        []types.LectureAsset `json:"assets"`
}

type slidesAcceptedResponse struct {
	PromptID  string               `json:"promptId"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	Structure types.SlideStructure `json:"structure"`
}

type slidesStatusResponse struct {
	PromptID       string    `json:"promptId"`
	Status         string    `json:"status"`
	TotalPages     int       `json:"totalPages"`
	GeneratedPages int       `json:"generatedPages"`
	LastUpdated    time.Time `json:"lastUpdated"`
	WebURL         *string   `json:"webUrl,omitempty"`
	PDFURL         *string   `json:"pdfUrl,omitempty"`
}

// POST /v1/slides/generate
// Runs the structure phase in-line so the caller gets the page layout back,
// then materializes and uploads the deck in the background.
func (h *SlidesHandler) Generate(c *gin.Context) {
	var body slidesGenerateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if body.PromptID == "" || body.LectureScript == "" {
		RespondError(c, http.StatusBadRequest, "missing_field",
			fmt.Errorf("promptId and lectureScript are required"))
		return
	}

	drafts, err := h.pipeline.BuildStructure(c.Request.Context(), body.PromptID, body.LectureScript)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "structure_failed", err)
		return
	}

	pages := make([]types.SlidePage, len(drafts))
	for i, d := range drafts {
		pages[i] = types.SlidePage{Content: d.Content}
	}

	promptID := body.PromptID
	assets := body.Assets
	h.pool.Submit(func(ctx context.Context) {
		h.pipeline.MaterializeDeck(ctx, promptID, drafts, assets)
	})

	h.log.Info("slide generation accepted", "prompt_id", promptID, "pages", len(pages))
	c.JSON(http.StatusAccepted, slidesAcceptedResponse{
		PromptID:  promptID,
		Status:    jobs.StateInProgress,
		CreatedAt: time.Now().UTC(),
		Structure: types.SlideStructure{Pages: pages},
	})
}

// GET /v1/slides/:promptId/status
// Falls back to the post-processor when the job manager has already evicted
// the record: a persisted slideset means the run finished.
func (h *SlidesHandler) GetStatus(c *gin.Context) {
	promptID := c.Param("promptId")

	if job, ok := h.jobs.GetStatus(promptID); ok {
		RespondOK(c, slidesStatusResponse{
			PromptID:       promptID,
			Status:         job.Status,
			TotalPages:     job.TotalPages,
			GeneratedPages: job.AchievedPages,
			LastUpdated:    job.LastUpdated,
			WebURL:         job.WebURL,
			PDFURL:         job.PDFURL,
		})
		return
	}

	if h.pp == nil {
		RespondError(c, http.StatusNotFound, "unknown_prompt",
			fmt.Errorf("no slideset for prompt %s", promptID))
		return
	}

	stored, err := h.pp.Get(c.Request.Context(), promptID)
	if err != nil {
		if errors.Is(err, postprocessing.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "unknown_prompt",
				fmt.Errorf("no slideset for prompt %s", promptID))
			return
		}
		RespondError(c, http.StatusBadGateway, "postprocessor_unavailable", err)
		return
	}

	resp := slidesStatusResponse{
		PromptID:    promptID,
		Status:      jobs.StateDone,
		LastUpdated: time.Now().UTC(),
	}
	if stored.WebURL != "" {
		resp.WebURL = &stored.WebURL
	}
	if stored.PDFURL != "" {
		resp.PDFURL = &stored.PDFURL
	}
	RespondOK(c, resp)
}
