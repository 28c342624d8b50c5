// Package worker drains the slide task queue, turning each narration into a
// WAV and a talking-head MP4. A single consumer serializes access to the
// GPU-bound collaborators.
package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/orpheus-edu/orpheus-core/internal/clients/avatar"
	"github.com/orpheus-edu/orpheus-core/internal/clients/tts"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/status"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

type Worker struct {
	log       *logger.Logger
	queue     *Queue
	updater   status.Updater
	tts       tts.Client
	avatar    avatar.Client
	assets    *AssetResolver
	videoRoot string
	// publicBase is the URL prefix under which videoRoot is served.
	publicBase string
	done       chan struct{}
}

func New(
	log *logger.Logger,
	queue *Queue,
	updater status.Updater,
	ttsClient tts.Client,
	avatarClient avatar.Client,
	assets *AssetResolver,
	videoRoot string,
	publicBase string,
) *Worker {
	return &Worker{
		log:        log.With("component", "slide_worker"),
		queue:      queue,
		updater:    updater,
		tts:        ttsClient,
		avatar:     avatarClient,
		assets:     assets,
		videoRoot:  videoRoot,
		publicBase: strings.TrimRight(publicBase, "/"),
		done:       make(chan struct{}),
	}
}

// Start launches the consumer goroutine. The worker stops between tasks when
// ctx ends; the queue is closed so the blocked Dequeue wakes up.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.queue.Close()
	}()
	go func() {
		defer close(w.done)
		w.log.Info("slide worker started")
		for {
			task, ok := w.queue.Dequeue()
			if !ok {
				w.log.Info("slide worker stopped")
				return
			}
			w.process(ctx, task)
		}
	}()
}

// Done closes when the consumer goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// process renders one slide. Audio strictly precedes video; a failed audio
// step skips video entirely and the worker moves on to the next task.
func (w *Worker) process(ctx context.Context, task types.SlideTask) {
	log := w.log.With("prompt_id", task.PromptID, "slide", task.SlideIndex)
	slot := task.SlideIndex - 1

	w.patchSlot(ctx, task.PromptID, slot, types.AvatarElementStatus{
		Audio: types.StepInProgress,
		Video: types.StepNotStarted,
	})

	audioPath := filepath.Join(w.videoRoot, task.PromptID, fmt.Sprintf("%d.wav", task.SlideIndex))
	voice := w.assets.Voice(task.CourseID)
	if err := w.tts.GenerateAudio(ctx, voice, task.CourseID, task.NarrationText, audioPath); err != nil {
		log.Error("audio generation failed", "error", err)
		w.patchSlot(ctx, task.PromptID, slot, types.AvatarElementStatus{
			Audio: types.StepFailed,
			Video: types.StepNotStarted,
		})
		return
	}

	w.patchSlot(ctx, task.PromptID, slot, types.AvatarElementStatus{
		Audio: types.StepDone,
		Video: types.StepInProgress,
	})

	videoPath := filepath.Join(w.videoRoot, task.PromptID, fmt.Sprintf("%d.mp4", task.SlideIndex))
	portrait := w.assets.Portrait(task.CourseID)
	if err := w.avatar.RenderVideo(ctx, audioPath, portrait, videoPath); err != nil {
		log.Error("video rendering failed", "error", err)
		w.patchSlot(ctx, task.PromptID, slot, types.AvatarElementStatus{
			Audio: types.StepDone,
			Video: types.StepFailed,
		})
		return
	}

	w.patchSlot(ctx, task.PromptID, slot, types.AvatarElementStatus{
		Audio: types.StepDone,
		Video: types.StepDone,
	})
	if w.publicBase != "" {
		log.Info("slide rendered",
			"audio", audioPath,
			"video", videoPath,
			"url", fmt.Sprintf("%s/%s/%d.mp4", w.publicBase, task.PromptID, task.SlideIndex),
		)
	} else {
		log.Info("slide rendered", "audio", audioPath, "video", videoPath)
	}
}

func (w *Worker) patchSlot(ctx context.Context, promptID string, slot int, st types.AvatarElementStatus) {
	err := w.updater.Patch(ctx, promptID, types.StatusPatch{
		StepsAvatarGeneration: map[string]types.AvatarElementStatus{
			strconv.Itoa(slot): st,
		},
	})
	if err != nil {
		w.log.Warn("avatar slot patch failed",
			"prompt_id", promptID, "slot", slot, "error", err)
	}
}
