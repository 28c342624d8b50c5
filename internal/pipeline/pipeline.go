// Package pipeline orchestrates one prompt's journey from free-form question
// to slide deck and per-slide avatar tasks.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orpheus-edu/orpheus-core/internal/clients/llm"
	"github.com/orpheus-edu/orpheus-core/internal/clients/postprocessing"
	"github.com/orpheus-edu/orpheus-core/internal/clients/retrieval"
	"github.com/orpheus-edu/orpheus-core/internal/clients/slides"
	"github.com/orpheus-edu/orpheus-core/internal/jobs"
	"github.com/orpheus-edu/orpheus-core/internal/layouts"
	"github.com/orpheus-edu/orpheus-core/internal/llmjson"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/status"
	"github.com/orpheus-edu/orpheus-core/internal/types"
	"github.com/orpheus-edu/orpheus-core/internal/worker"
)

// DeckSeparator joins materialized slide bodies into one sli.dev document.
const DeckSeparator = "\n---\n"

type Config struct {
	// SplittingModel serves decomposition, script, structure, narration and
	// summary calls. SlidesgenModel serves per-slide field filling.
	SplittingModel string
	SlidesgenModel string
	Theme          string
	// Debug replaces every collaborator call with canned payloads so the
	// pipeline can be smoke-tested without deployments.
	Debug bool
}

type Service struct {
	log     *logger.Logger
	cfg     Config
	llm     llm.Client
	ret     retrieval.Client
	pp      postprocessing.Client
	updater status.Updater
	jobs    *jobs.Manager
	queue   *worker.Queue
	catalog *layouts.Catalog

	// slidesRemote, when non-nil, delegates structure, materialization and
	// upload to an external slides service.
	slidesRemote slides.Client
}

func New(
	log *logger.Logger,
	cfg Config,
	llmClient llm.Client,
	retClient retrieval.Client,
	ppClient postprocessing.Client,
	updater status.Updater,
	jobManager *jobs.Manager,
	queue *worker.Queue,
	catalog *layouts.Catalog,
) *Service {
	return &Service{
		log:     log.With("service", "PromptPipeline"),
		cfg:     cfg,
		llm:     llmClient,
		ret:     retClient,
		pp:      ppClient,
		updater: updater,
		jobs:    jobManager,
		queue:   queue,
		catalog: catalog,
	}
}

// UseRemoteSlides switches phases 4-6 to the external slides service.
// Wiring-time only; not safe to call once runs have started.
func (s *Service) UseRemoteSlides(c slides.Client) {
	s.slidesRemote = c
}

// Run executes the full pipeline for one accepted prompt. It never returns an
// error: every failure is reflected in the status record.
func (s *Service) Run(ctx context.Context, req types.PromptRequest) {
	log := s.log.With("prompt_id", req.PromptID, "course_id", req.CourseID)
	log.Info("pipeline started")

	subqueries, ok := s.understand(ctx, req)
	if !ok {
		return
	}

	chunks := s.lookup(ctx, req, subqueries)

	script, ok := s.generateScript(ctx, req, chunks)
	if !ok {
		return
	}

	var drafts []types.SlideDraft
	if s.slidesRemote != nil {
		var ok bool
		if drafts, ok = s.delegateSlides(ctx, req, script); !ok {
			return
		}
	} else {
		var err error
		if drafts, err = s.BuildStructure(ctx, req.PromptID, script.Text); err != nil {
			return
		}
		s.MaterializeDeck(ctx, req.PromptID, drafts, script.Assets)
	}

	s.narrate(ctx, req, script.Text, drafts)
	log.Info("pipeline finished", "slides", len(drafts))
}

// delegateSlides hands structure, materialization and upload to the external
// slides service. The remote service shares the status fabric, so only the
// delegation failure itself is patched here.
func (s *Service) delegateSlides(ctx context.Context, req types.PromptRequest, script types.LectureScript) ([]types.SlideDraft, bool) {
	resp, err := s.slidesRemote.Generate(ctx, slides.GenerateRequest{
		CourseID:      req.CourseID,
		PromptID:      req.PromptID,
		LectureScript: script.Text,
		User:          req.UserPersona,
		Assets:        script.Assets,
	})
	if err != nil {
		s.log.Error("slides delegation failed", "prompt_id", req.PromptID, "error", err)
		s.patch(ctx, req.PromptID, types.StatusPatch{
			StepSlideStructureGeneration: types.StepPtr(types.StepFailed),
		})
		return nil, false
	}

	drafts := make([]types.SlideDraft, len(resp.Structure.Pages))
	for i, page := range resp.Structure.Pages {
		drafts[i] = types.SlideDraft{
			Index:      i + 1,
			Content:    page.Content,
			LayoutName: layouts.DefaultName,
		}
	}
	return drafts, true
}

// understand is phase 1: decompose the prompt into retrieval sub-queries.
// One retry on malformed LLM output, then the pipeline aborts.
func (s *Service) understand(ctx context.Context, req types.PromptRequest) ([]string, bool) {
	s.patch(ctx, req.PromptID, types.StatusPatch{
		StepUnderstanding: types.StepPtr(types.StepInProgress),
	})

	if s.cfg.Debug {
		s.patch(ctx, req.PromptID, types.StatusPatch{
			StepUnderstanding: types.StepPtr(types.StepDone),
		})
		return fixtureSubqueries(), true
	}

	type decomposition struct {
		OriginalQuestion string   `json:"original_question"`
		Subqueries       []string `json:"subqueries"`
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.llm.Chat(ctx, s.cfg.SplittingModel, []llm.Message{
			{Role: llm.RoleSystem, Content: decomposeSystem},
			{Role: llm.RoleUser, Content: decomposeUser(req.Prompt)},
		})
		if err != nil {
			lastErr = err
			continue
		}
		var out decomposition
		if err := llmjson.Unmarshal(raw, &out); err != nil {
			lastErr = err
			continue
		}
		s.patch(ctx, req.PromptID, types.StatusPatch{
			StepUnderstanding: types.StepPtr(types.StepDone),
		})
		return out.Subqueries, true
	}

	s.log.Error("understanding failed", "prompt_id", req.PromptID, "error", lastErr)
	s.patch(ctx, req.PromptID, types.StatusPatch{
		StepUnderstanding: types.StepPtr(types.StepFailed),
	})
	return nil, false
}

// lookup is phase 2: retrieve context per sub-query. Individual retrieval
// failures are logged and skipped; the script phase can run on empty context.
// The lecture summary is produced out-of-band and never blocks the pipeline.
func (s *Service) lookup(ctx context.Context, req types.PromptRequest, subqueries []string) []types.DocumentChunk {
	s.patch(ctx, req.PromptID, types.StatusPatch{
		StepLookup: types.StepPtr(types.StepInProgress),
	})

	var chunks []types.DocumentChunk
	if s.cfg.Debug {
		chunks = fixtureChunks()
	} else {
		for _, sub := range subqueries {
			got, err := s.ret.Query(ctx, req.CourseID, sub)
			if err != nil {
				s.log.Warn("retrieval failed for subquery",
					"prompt_id", req.PromptID, "subquery", sub, "error", err)
				continue
			}
			chunks = append(chunks, got...)
		}
	}

	go s.summarize(ctx, req.PromptID, chunks)

	s.patch(ctx, req.PromptID, types.StatusPatch{
		StepLookup: types.StepPtr(types.StepDone),
	})
	return chunks
}

func (s *Service) summarize(ctx context.Context, promptID string, chunks []types.DocumentChunk) {
	if len(chunks) == 0 {
		return
	}

	var summary string
	if s.cfg.Debug {
		summary = "The lecture explains for-loops with a push-up analogy, walks through a Java example, and covers initialization, condition and modification."
	} else {
		raw, err := s.llm.Chat(ctx, s.cfg.SplittingModel, []llm.Message{
			{Role: llm.RoleUser, Content: summaryUser(chunks)},
		})
		if err != nil {
			s.log.Warn("lecture summary failed", "prompt_id", promptID, "error", err)
			return
		}
		summary = strings.TrimSpace(llmjson.StripFences(raw))
	}

	s.patch(ctx, promptID, types.StatusPatch{LectureSummary: types.StrPtr(summary)})
}

// generateScript is phase 3: one coherent lecture script, three retries on
// malformed output.
func (s *Service) generateScript(ctx context.Context, req types.PromptRequest, chunks []types.DocumentChunk) (types.LectureScript, bool) {
	s.patch(ctx, req.PromptID, types.StatusPatch{
		StepLectureScriptGeneration: types.StepPtr(types.StepInProgress),
	})

	if s.cfg.Debug {
		s.patch(ctx, req.PromptID, types.StatusPatch{
			StepLectureScriptGeneration: types.StepPtr(types.StepDone),
		})
		return fixtureScript(), true
	}

	type scriptResult struct {
		LectureScript string `json:"lectureScript"`
		Images        []struct {
			Image       string `json:"image"`
			Description string `json:"description"`
		} `json:"Images"`
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := s.llm.Chat(ctx, s.cfg.SplittingModel, []llm.Message{
			{Role: llm.RoleSystem, Content: scriptSystem},
			{Role: llm.RoleUser, Content: scriptUser(req.UserPersona, chunks)},
		})
		if err != nil {
			lastErr = err
			continue
		}
		var out scriptResult
		if err := llmjson.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.LectureScript) == "" {
			if err == nil {
				err = fmt.Errorf("script response missing lectureScript")
			}
			lastErr = err
			continue
		}

		script := types.LectureScript{Text: out.LectureScript}
		for _, img := range out.Images {
			script.Assets = append(script.Assets, types.LectureAsset{
				Name:        img.Image,
				Description: img.Description,
			})
		}
		s.patch(ctx, req.PromptID, types.StatusPatch{
			StepLectureScriptGeneration: types.StepPtr(types.StepDone),
		})
		return script, true
	}

	s.log.Error("script generation failed", "prompt_id", req.PromptID, "error", lastErr)
	s.patch(ctx, req.PromptID, types.StatusPatch{
		StepLectureScriptGeneration: types.StepPtr(types.StepFailed),
	})
	return types.LectureScript{}, false
}

// BuildStructure is phase 4: split the lecture script into ordered slide
// drafts. Emitting the structure in the status patch creates the avatar
// progress slots. Exposed separately because the slides endpoint starts here.
func (s *Service) BuildStructure(ctx context.Context, promptID, lectureScript string) ([]types.SlideDraft, error) {
	s.patch(ctx, promptID, types.StatusPatch{
		StepSlideStructureGeneration: types.StepPtr(types.StepInProgress),
	})

	drafts, err := s.splitScript(ctx, lectureScript)
	if err != nil {
		s.log.Error("slide structure generation failed", "prompt_id", promptID, "error", err)
		s.patch(ctx, promptID, types.StatusPatch{
			StepSlideStructureGeneration: types.StepPtr(types.StepFailed),
		})
		return nil, err
	}

	pages := make([]types.SlidePage, len(drafts))
	for i, d := range drafts {
		pages[i] = types.SlidePage{Content: d.Content}
	}
	s.patch(ctx, promptID, types.StatusPatch{
		SlideStructure:               &types.SlideStructure{Pages: pages},
		StepSlideStructureGeneration: types.StepPtr(types.StepDone),
	})
	return drafts, nil
}

func (s *Service) splitScript(ctx context.Context, lectureScript string) ([]types.SlideDraft, error) {
	if s.cfg.Debug {
		return fixtureDrafts(), nil
	}

	type structureResult struct {
		Items []struct {
			Content string `json:"content"`
			Layout  string `json:"layout"`
		} `json:"items"`
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		raw, err := s.llm.Chat(ctx, s.cfg.SplittingModel, []llm.Message{
			{Role: llm.RoleSystem, Content: structureSystem},
			{Role: llm.RoleUser, Content: structureUser(lectureScript, s.catalog)},
		})
		if err != nil {
			lastErr = err
			continue
		}
		var out structureResult
		if err := llmjson.Unmarshal(raw, &out); err != nil {
			lastErr = err
			continue
		}
		if len(out.Items) == 0 {
			lastErr = fmt.Errorf("structure response has no slides")
			continue
		}

		drafts := make([]types.SlideDraft, len(out.Items))
		for i, item := range out.Items {
			drafts[i] = types.SlideDraft{
				Index:      i + 1,
				Content:    item.Content,
				LayoutName: item.Layout,
			}
		}
		return drafts, nil
	}
	return nil, lastErr
}

// MaterializeDeck is phases 5 and 6: fill every draft's layout in parallel,
// assemble the deck in draft order and ship it to the post-processor. Partial
// decks are still shipped.
func (s *Service) MaterializeDeck(ctx context.Context, promptID string, drafts []types.SlideDraft, assets []types.LectureAsset) {
	s.jobs.Init(promptID, len(drafts))

	bodies := make([]string, len(drafts))
	var mu sync.Mutex
	generated := 0

	g, gctx := errgroup.WithContext(ctx)
	for i := range drafts {
		i := i
		g.Go(func() error {
			body, err := s.materializeSlide(gctx, drafts[i])
			if err != nil {
				s.log.Error("slide materialization failed",
					"prompt_id", promptID, "slide", drafts[i].Index, "error", err)
				s.jobs.Fail(promptID, fmt.Sprintf("slide %d: %v", drafts[i].Index, err))
				return nil
			}
			// The count patch is issued under mu so a later count can never
			// reach the store before an earlier one.
			mu.Lock()
			bodies[i] = body
			generated++
			s.jobs.FinishPage(promptID)
			s.patch(gctx, promptID, types.StatusPatch{
				StepSlideGeneration: types.IntPtr(generated),
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var kept []string
	for _, body := range bodies {
		if body != "" {
			kept = append(kept, body)
		}
	}
	s.upload(ctx, promptID, strings.Join(kept, DeckSeparator), assets)
}

func (s *Service) materializeSlide(ctx context.Context, draft types.SlideDraft) (string, error) {
	layout := s.catalog.Get(draft.LayoutName)

	if s.cfg.Debug {
		return "# Slide " + fmt.Sprint(draft.Index) + "\n\n" + draft.Content, nil
	}
	if len(layout.FieldSchema) == 0 {
		return layout.Template, nil
	}

	raw, err := s.llm.Chat(ctx, s.cfg.SlidesgenModel, []llm.Message{
		{Role: llm.RoleSystem, Content: slideContentSystem},
		{Role: llm.RoleUser, Content: slideContentUser(draft, layout)},
	})
	if err != nil {
		return "", err
	}

	var fields map[string]any
	if err := llmjson.Unmarshal(raw, &fields); err != nil {
		return "", err
	}
	vars := make(map[string]string, len(fields))
	for k, v := range fields {
		if str, ok := v.(string); ok {
			vars[k] = str
		} else {
			vars[k] = fmt.Sprint(v)
		}
	}
	return layouts.SafeSubstitute(layout.Template, vars), nil
}

func (s *Service) upload(ctx context.Context, promptID, deck string, assets []types.LectureAsset) {
	s.patch(ctx, promptID, types.StatusPatch{
		StepSlidePostprocessing: types.StepPtr(types.StepInProgress),
	})

	if s.cfg.Debug {
		s.jobs.FinishUpload(promptID,
			"http://localhost/debug/"+promptID+"/web",
			"http://localhost/debug/"+promptID+"/pdf")
		s.patch(ctx, promptID, types.StatusPatch{
			StepSlidePostprocessing: types.StepPtr(types.StepDone),
		})
		return
	}

	ppAssets := make([]postprocessing.Asset, 0, len(assets))
	for _, a := range assets {
		ppAssets = append(ppAssets, postprocessing.Asset{Path: a.Name, Data: a.Data})
	}

	result, err := s.pp.Store(ctx, s.cfg.Theme, postprocessing.Slideset{
		PromptID: promptID,
		Slideset: deck,
		Assets:   ppAssets,
	})
	if err != nil {
		s.log.Error("slideset upload failed", "prompt_id", promptID, "error", err)
		s.jobs.Fail(promptID, err.Error())
		s.patch(ctx, promptID, types.StatusPatch{
			StepSlidePostprocessing: types.StepPtr(types.StepFailed),
		})
		return
	}

	s.jobs.FinishUpload(promptID, result.WebURL, result.PDFURL)
	s.patch(ctx, promptID, types.StatusPatch{
		StepSlidePostprocessing: types.StepPtr(types.StepDone),
	})
}

// narrate is phase 7: sequential narration generation with accumulated
// history, enqueueing one slide task per narration. Enqueueing never blocks,
// so the worker renders slide 1 while slide 2's narration is still being
// written.
func (s *Service) narrate(ctx context.Context, req types.PromptRequest, lectureScript string, drafts []types.SlideDraft) {
	var history strings.Builder
	for i, draft := range drafts {
		narration, err := s.narrateSlide(ctx, req, lectureScript, history.String(), draft, i == 0, i == len(drafts)-1)
		if err != nil {
			s.log.Error("narration generation failed",
				"prompt_id", req.PromptID, "slide", draft.Index, "error", err)
			s.patchSlot(ctx, req.PromptID, i, types.AvatarElementStatus{
				Audio: types.StepFailed,
				Video: types.StepNotStarted,
			})
			continue
		}

		fmt.Fprintf(&history, "Slide %d Narration: %s\n", draft.Index, narration)
		s.queue.Enqueue(types.SlideTask{
			PromptID:      req.PromptID,
			SlideIndex:    draft.Index,
			NarrationText: narration,
			Persona:       req.UserPersona,
			CourseID:      req.CourseID,
		})
	}
}

func (s *Service) narrateSlide(ctx context.Context, req types.PromptRequest, lectureScript, history string, draft types.SlideDraft, first, last bool) (string, error) {
	if s.cfg.Debug {
		return fixtureNarration(first, last), nil
	}
	raw, err := s.llm.Chat(ctx, s.cfg.SplittingModel, []llm.Message{
		{Role: llm.RoleUser, Content: narrationUser(lectureScript, history, draft.Content, req.UserPersona, first, last)},
	})
	if err != nil {
		return "", err
	}
	narration := strings.TrimSpace(llmjson.StripFences(raw))
	if narration == "" {
		return "", fmt.Errorf("empty narration")
	}
	return narration, nil
}

func (s *Service) patch(ctx context.Context, promptID string, patch types.StatusPatch) {
	if err := s.updater.Patch(ctx, promptID, patch); err != nil {
		s.log.Warn("status patch failed", "prompt_id", promptID, "error", err)
	}
}

func (s *Service) patchSlot(ctx context.Context, promptID string, slot int, st types.AvatarElementStatus) {
	s.patch(ctx, promptID, types.StatusPatch{
		StepsAvatarGeneration: map[string]types.AvatarElementStatus{
			fmt.Sprint(slot): st,
		},
	})
}
