package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/clients/llm"
	"github.com/orpheus-edu/orpheus-core/internal/clients/postprocessing"
	"github.com/orpheus-edu/orpheus-core/internal/clients/slides"
	"github.com/orpheus-edu/orpheus-core/internal/jobs"
	"github.com/orpheus-edu/orpheus-core/internal/layouts"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/status"
	"github.com/orpheus-edu/orpheus-core/internal/types"
	"github.com/orpheus-edu/orpheus-core/internal/worker"
)

type llmCall struct {
	model    string
	messages []llm.Message
}

type fakeLLM struct {
	mu      sync.Mutex
	calls   []llmCall
	respond func(model string, messages []llm.Message) (string, error)
}

func (f *fakeLLM) Chat(_ context.Context, model string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, llmCall{model: model, messages: messages})
	f.mu.Unlock()
	return f.respond(model, messages)
}

func (f *fakeLLM) callsSnapshot() []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llmCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeRetrieval struct {
	mu      sync.Mutex
	queries []string
	chunks  []types.DocumentChunk
	err     error
}

func (f *fakeRetrieval) Query(_ context.Context, _ string, promptQuery string) ([]types.DocumentChunk, error) {
	f.mu.Lock()
	f.queries = append(f.queries, promptQuery)
	f.mu.Unlock()
	return f.chunks, f.err
}

type fakePP struct {
	mu     sync.Mutex
	stored []postprocessing.Slideset
	theme  string
	err    error
}

func (f *fakePP) Store(_ context.Context, theme string, slideset postprocessing.Slideset) (postprocessing.UploadResult, error) {
	f.mu.Lock()
	f.stored = append(f.stored, slideset)
	f.theme = theme
	f.mu.Unlock()
	if f.err != nil {
		return postprocessing.UploadResult{}, f.err
	}
	return postprocessing.UploadResult{WebURL: "http://pp/web", PDFURL: "http://pp/pdf"}, nil
}

func (f *fakePP) Get(context.Context, string) (postprocessing.Slideset, error) {
	return postprocessing.Slideset{}, postprocessing.ErrNotFound
}

type fixture struct {
	svc     *Service
	store   *status.Store
	jobs    *jobs.Manager
	queue   *worker.Queue
	llm     *fakeLLM
	ret     *fakeRetrieval
	pp      *fakePP
	updater status.Updater
}

func newFixture(t *testing.T, cfg Config, llmClient *fakeLLM, ret *fakeRetrieval, pp *fakePP) *fixture {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	catalog, err := layouts.NewCatalog()
	if err != nil {
		t.Fatalf("layouts.NewCatalog: %v", err)
	}
	store := status.NewStore(log, 24*time.Hour)
	updater := status.NewLocalUpdater(store)
	jobManager := jobs.NewManager(log, 4*time.Hour)
	queue := worker.NewQueue()
	svc := New(log, cfg, llmClient, ret, pp, updater, jobManager, queue, catalog)
	return &fixture{
		svc: svc, store: store, jobs: jobManager, queue: queue,
		llm: llmClient, ret: ret, pp: pp, updater: updater,
	}
}

// scriptedResponder routes calls on markers in the prompts.
func scriptedResponder(t *testing.T) func(model string, messages []llm.Message) (string, error) {
	return func(model string, messages []llm.Message) (string, error) {
		system := ""
		user := messages[len(messages)-1].Content
		if messages[0].Role == llm.RoleSystem {
			system = messages[0].Content
		}
		switch {
		case strings.Contains(system, "decomposes a student's question"):
			return "```json\n{\"original_question\":\"Explain for-loops\",\"subqueries\":[\"what is a for-loop\",\"for-loop elements\"]}\n```", nil
		case strings.Contains(system, "coherent answer to a question"):
			return `{"lectureScript":"A for-loop repeats an action. It has three elements.","Images":[{"image":"loop.png","description":"loop diagram"}]}`, nil
		case strings.Contains(system, "creating a slideset"):
			return `{"items":[{"content":"Intro to for-loops","layout":"default"},{"content":"Elements of a for-loop","layout":"made-up-layout"}]}`, nil
		case strings.Contains(system, "slides for sli.dev"):
			return `{"title":"For-Loops","body":"- repeat an action"}`, nil
		case strings.Contains(user, "Summarize the following content"):
			return "A short summary of the lecture.", nil
		case strings.Contains(user, "narration the lecturer speaks"):
			return "Narration for this slide.", nil
		default:
			t.Errorf("unexpected LLM call: system=%q user=%q", system, user)
			return "", errors.New("unexpected call")
		}
	}
}

func request() types.PromptRequest {
	return types.PromptRequest{
		PromptID: "p1",
		CourseID: "cs001",
		Prompt:   "Explain for-loops",
		UserPersona: types.Persona{
			Role:     types.RoleStudent,
			Language: types.LanguageEnglish,
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	llmClient := &fakeLLM{respond: scriptedResponder(t)}
	ret := &fakeRetrieval{chunks: []types.DocumentChunk{{Content: []string{"for-loops repeat"}}}}
	pp := &fakePP{}
	fx := newFixture(t, Config{SplittingModel: "split-m", SlidesgenModel: "gen-m", Theme: "academic"}, llmClient, ret, pp)

	fx.svc.Run(context.Background(), request())

	// The summary is produced out-of-band; wait for its patch to land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fx.store.Get("p1").LectureSummary == nil {
		time.Sleep(5 * time.Millisecond)
	}

	st := fx.store.Get("p1")
	if st.LectureSummary == nil || *st.LectureSummary != "A short summary of the lecture." {
		t.Fatalf("lectureSummary = %v", st.LectureSummary)
	}
	if st.StepUnderstanding != types.StepDone ||
		st.StepLookup != types.StepDone ||
		st.StepLectureScriptGeneration != types.StepDone ||
		st.StepSlideStructureGeneration != types.StepDone ||
		st.StepSlidePostprocessing != types.StepDone {
		t.Fatalf("steps not DONE: %+v", st)
	}
	if st.StepSlideGeneration != 2 {
		t.Fatalf("stepSlideGeneration = %d, want 2", st.StepSlideGeneration)
	}
	if st.SlideStructure == nil || len(st.SlideStructure.Pages) != 2 {
		t.Fatalf("slideStructure = %+v", st.SlideStructure)
	}
	if len(st.StepsAvatarGeneration) != 2 {
		t.Fatalf("avatar slots = %d, want 2", len(st.StepsAvatarGeneration))
	}

	// Both subqueries hit retrieval.
	if len(ret.queries) != 2 {
		t.Fatalf("retrieval queries = %v", ret.queries)
	}

	// Deck shipped with theme and joined bodies.
	if pp.theme != "academic" || len(pp.stored) != 1 {
		t.Fatalf("pp = %+v theme=%q", pp.stored, pp.theme)
	}
	deck := pp.stored[0].Slideset
	if !strings.Contains(deck, DeckSeparator) {
		t.Fatalf("deck missing separator: %q", deck)
	}
	if len(pp.stored[0].Assets) != 1 || pp.stored[0].Assets[0].Path != "loop.png" {
		t.Fatalf("assets = %+v", pp.stored[0].Assets)
	}

	job, ok := fx.jobs.GetStatus("p1")
	if !ok || job.Status != jobs.StateDone {
		t.Fatalf("job = %+v ok=%v", job, ok)
	}
	if job.WebURL == nil || *job.WebURL != "http://pp/web" {
		t.Fatalf("webUrl = %v", job.WebURL)
	}

	// Two slide tasks enqueued, in index order.
	first, ok := fx.queue.Dequeue()
	if !ok || first.SlideIndex != 1 || first.PromptID != "p1" {
		t.Fatalf("first task = %+v", first)
	}
	second, _ := fx.queue.Dequeue()
	if second.SlideIndex != 2 {
		t.Fatalf("second task = %+v", second)
	}
	if first.NarrationText == "" {
		t.Fatalf("task missing narration")
	}
}

func TestNarrationHistoryAccumulates(t *testing.T) {
	var narrationPrompts []string
	var mu sync.Mutex
	base := scriptedResponder(t)
	llmClient := &fakeLLM{respond: func(model string, messages []llm.Message) (string, error) {
		user := messages[len(messages)-1].Content
		if strings.Contains(user, "narration the lecturer speaks") {
			mu.Lock()
			narrationPrompts = append(narrationPrompts, user)
			mu.Unlock()
		}
		return base(model, messages)
	}}
	ret := &fakeRetrieval{}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, ret, &fakePP{})

	fx.svc.Run(context.Background(), request())

	if len(narrationPrompts) != 2 {
		t.Fatalf("narration calls = %d", len(narrationPrompts))
	}
	if strings.Contains(narrationPrompts[0], "Slide 1 Narration") {
		t.Fatalf("first narration already has history")
	}
	if !strings.Contains(narrationPrompts[1], "Slide 1 Narration: Narration for this slide.") {
		t.Fatalf("second narration missing history:\n%s", narrationPrompts[1])
	}
	if !strings.Contains(narrationPrompts[0], "FIRST slide") {
		t.Fatalf("first slide instruction missing")
	}
	if !strings.Contains(narrationPrompts[1], "LAST slide") {
		t.Fatalf("last slide instruction missing")
	}
}

func TestUnderstandingFailureAborts(t *testing.T) {
	llmClient := &fakeLLM{respond: func(string, []llm.Message) (string, error) {
		return "no json here at all", nil
	}}
	ret := &fakeRetrieval{}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, ret, &fakePP{})

	fx.svc.Run(context.Background(), request())

	st := fx.store.Get("p1")
	if st.StepUnderstanding != types.StepFailed {
		t.Fatalf("stepUnderstanding = %q", st.StepUnderstanding)
	}
	if st.StepLookup != types.StepNotStarted {
		t.Fatalf("lookup ran after failed understanding: %q", st.StepLookup)
	}
	// One retry before giving up.
	if got := len(llmClient.callsSnapshot()); got != 2 {
		t.Fatalf("decompose attempts = %d, want 2", got)
	}
	if len(ret.queries) != 0 {
		t.Fatalf("retrieval called after abort")
	}
}

func TestPostprocessorFailureMarksJobFailed(t *testing.T) {
	llmClient := &fakeLLM{respond: scriptedResponder(t)}
	pp := &fakePP{err: errors.New("postprocessing http 503: unavailable")}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, &fakeRetrieval{}, pp)

	fx.svc.Run(context.Background(), request())

	st := fx.store.Get("p1")
	if st.StepSlidePostprocessing != types.StepFailed {
		t.Fatalf("stepSlidePostprocessing = %q", st.StepSlidePostprocessing)
	}
	job, ok := fx.jobs.GetStatus("p1")
	if !ok || job.Status != jobs.StateFailed {
		t.Fatalf("job = %+v", job)
	}
	// Narration still runs: tasks are enqueued despite the failed upload.
	if fx.queue.Len() != 2 {
		t.Fatalf("queued tasks = %d, want 2", fx.queue.Len())
	}
}

func TestRetrievalFailureContinuesOnEmptyContext(t *testing.T) {
	llmClient := &fakeLLM{respond: scriptedResponder(t)}
	ret := &fakeRetrieval{err: errors.New("retrieval http 502: bad gateway")}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, ret, &fakePP{})

	fx.svc.Run(context.Background(), request())

	st := fx.store.Get("p1")
	if st.StepLookup != types.StepDone {
		t.Fatalf("stepLookup = %q, want DONE despite retrieval errors", st.StepLookup)
	}
	if st.StepLectureScriptGeneration != types.StepDone {
		t.Fatalf("script did not run on empty context: %q", st.StepLectureScriptGeneration)
	}
}

func TestDebugModeRunsWithoutCollaborators(t *testing.T) {
	llmClient := &fakeLLM{respond: func(string, []llm.Message) (string, error) {
		return "", errors.New("no collaborators in smoke mode")
	}}
	ret := &fakeRetrieval{err: errors.New("unreachable")}
	pp := &fakePP{err: errors.New("unreachable")}
	fx := newFixture(t, Config{Debug: true}, llmClient, ret, pp)

	fx.svc.Run(context.Background(), request())

	st := fx.store.Get("p1")
	if st.StepUnderstanding != types.StepDone || st.StepSlidePostprocessing != types.StepDone {
		t.Fatalf("smoke run incomplete: %+v", st)
	}
	if len(st.StepsAvatarGeneration) != 5 {
		t.Fatalf("avatar slots = %d, want 5", len(st.StepsAvatarGeneration))
	}
	job, ok := fx.jobs.GetStatus("p1")
	if !ok || job.Status != jobs.StateDone {
		t.Fatalf("job = %+v", job)
	}
	if fx.queue.Len() != 5 {
		t.Fatalf("queued tasks = %d, want 5", fx.queue.Len())
	}
	if len(ret.queries) != 0 || len(pp.stored) != 0 {
		t.Fatalf("collaborators were called in smoke mode")
	}
}

func TestBuildStructureCreatesSlots(t *testing.T) {
	llmClient := &fakeLLM{respond: scriptedResponder(t)}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, &fakeRetrieval{}, &fakePP{})

	drafts, err := fx.svc.BuildStructure(context.Background(), "p9", "A for-loop repeats an action.")
	if err != nil {
		t.Fatalf("BuildStructure: %v", err)
	}
	if len(drafts) != 2 || drafts[0].Index != 1 || drafts[1].Index != 2 {
		t.Fatalf("drafts = %+v", drafts)
	}
	st := fx.store.Get("p9")
	if st.StepSlideStructureGeneration != types.StepDone {
		t.Fatalf("structure step = %q", st.StepSlideStructureGeneration)
	}
	if len(st.StepsAvatarGeneration) != 2 {
		t.Fatalf("slots = %d", len(st.StepsAvatarGeneration))
	}
}

type fakeSlides struct {
	mu    sync.Mutex
	reqs  []slides.GenerateRequest
	pages []types.SlidePage
	err   error
}

func (f *fakeSlides) Generate(_ context.Context, req slides.GenerateRequest) (slides.GenerateResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return slides.GenerateResponse{}, f.err
	}
	return slides.GenerateResponse{
		PromptID:  req.PromptID,
		Status:    jobs.StateInProgress,
		Structure: types.SlideStructure{Pages: f.pages},
	}, nil
}

func (f *fakeSlides) Status(context.Context, string) (slides.StatusResponse, error) {
	return slides.StatusResponse{}, nil
}

func TestRemoteSlidesDelegation(t *testing.T) {
	llmClient := &fakeLLM{respond: scriptedResponder(t)}
	ret := &fakeRetrieval{}
	pp := &fakePP{}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, ret, pp)

	remote := &fakeSlides{pages: []types.SlidePage{
		{Content: "What a for-loop is."},
		{Content: "A worked example."},
	}}
	fx.svc.UseRemoteSlides(remote)

	fx.svc.Run(context.Background(), request())

	remote.mu.Lock()
	reqs := append([]slides.GenerateRequest(nil), remote.reqs...)
	remote.mu.Unlock()
	if len(reqs) != 1 {
		t.Fatalf("remote generate calls = %d, want 1", len(reqs))
	}
	if reqs[0].PromptID != "p1" || reqs[0].CourseID != "cs001" || reqs[0].LectureScript == "" {
		t.Fatalf("generate request = %+v", reqs[0])
	}

	// Materialization and upload are the remote service's job.
	if len(pp.stored) != 0 {
		t.Fatalf("local upload ran despite delegation: %+v", pp.stored)
	}

	// Narration still runs locally over the delegated structure.
	first, ok := fx.queue.Dequeue()
	if !ok || first.SlideIndex != 1 {
		t.Fatalf("first task = %+v ok=%v", first, ok)
	}
	second, _ := fx.queue.Dequeue()
	if second.SlideIndex != 2 {
		t.Fatalf("second task = %+v", second)
	}
}

func TestRemoteSlidesFailureMarksStructureFailed(t *testing.T) {
	llmClient := &fakeLLM{respond: scriptedResponder(t)}
	fx := newFixture(t, Config{SplittingModel: "m", SlidesgenModel: "m"}, llmClient, &fakeRetrieval{}, &fakePP{})

	remote := &fakeSlides{err: errors.New("slides service down")}
	fx.svc.UseRemoteSlides(remote)

	fx.svc.Run(context.Background(), request())

	st := fx.store.Get("p1")
	if st.StepSlideStructureGeneration != types.StepFailed {
		t.Fatalf("structure step = %q, want FAILED", st.StepSlideStructureGeneration)
	}
	if fx.queue.Len() != 0 {
		t.Fatalf("tasks enqueued after delegation failure: %d", fx.queue.Len())
	}
}

// countingUpdater records every stepSlideGeneration patch in arrival order.
type countingUpdater struct {
	mu     sync.Mutex
	counts []int
}

func (u *countingUpdater) Patch(_ context.Context, _ string, patch types.StatusPatch) error {
	if patch.StepSlideGeneration != nil {
		u.mu.Lock()
		u.counts = append(u.counts, *patch.StepSlideGeneration)
		u.mu.Unlock()
	}
	return nil
}

func (u *countingUpdater) Status(context.Context, string) (types.Status, error) {
	return types.NewStatus(), nil
}

// The fan-out must never let a later slide count reach the store before an
// earlier one; subscribers keep the final count forever.
func TestMaterializeDeckCountPatchesAreMonotonic(t *testing.T) {
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	catalog, err := layouts.NewCatalog()
	if err != nil {
		t.Fatalf("layouts.NewCatalog: %v", err)
	}

	drafts := make([]types.SlideDraft, 16)
	for i := range drafts {
		drafts[i] = types.SlideDraft{Index: i + 1, Content: "lecture part", LayoutName: layouts.DefaultName}
	}

	for run := 0; run < 200; run++ {
		updater := &countingUpdater{}
		jobManager := jobs.NewManager(log, time.Hour)
		svc := New(log, Config{Debug: true}, nil, nil, nil, updater, jobManager, worker.NewQueue(), catalog)

		svc.MaterializeDeck(context.Background(), "p1", drafts, nil)

		if len(updater.counts) != len(drafts) {
			t.Fatalf("run %d: %d count patches, want %d", run, len(updater.counts), len(drafts))
		}
		for i, c := range updater.counts {
			if c != i+1 {
				t.Fatalf("run %d: counts out of order: %v", run, updater.counts)
			}
		}
	}
}

func TestSingleSlideNarrationGetsOpeningAndClosing(t *testing.T) {
	prompt := narrationUser("the script", "", "only slide", types.Persona{Role: types.RoleStudent}, true, true)
	if !strings.Contains(prompt, narrationFirstSlide) {
		t.Fatalf("single-slide prompt missing opening instruction")
	}
	if !strings.Contains(prompt, narrationLastSlide) {
		t.Fatalf("single-slide prompt missing closing instruction")
	}
}
