package types

type StepStatus string

const (
	StepNotStarted StepStatus = "NOT_STARTED"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepDone       StepStatus = "DONE"
	StepFailed     StepStatus = "FAILED"
)

// AvatarElementStatus tracks the audio and video render steps for one slide.
type AvatarElementStatus struct {
	Audio StepStatus `json:"audio"`
	Video StepStatus `json:"video"`
}

type SlidePage struct {
	Content string `json:"content"`
}

type SlideStructure struct {
	Pages []SlidePage `json:"pages"`
}

// Status is the per-prompt progress aggregate streamed to subscribers.
type Status struct {
	StepUnderstanding            StepStatus            `json:"stepUnderstanding"`
	StepLookup                   StepStatus            `json:"stepLookup"`
	StepLectureScriptGeneration  StepStatus            `json:"stepLectureScriptGeneration"`
	StepSlideStructureGeneration StepStatus            `json:"stepSlideStructureGeneration"`
	StepSlideGeneration          int                   `json:"stepSlideGeneration"`
	StepSlidePostprocessing      StepStatus            `json:"stepSlidePostprocessing"`
	StepsAvatarGeneration        []AvatarElementStatus `json:"stepsAvatarGeneration"`
	LectureSummary               *string               `json:"lectureSummary"`
	SlideStructure               *SlideStructure       `json:"slideStructure"`
}

// StatusPatch is the sparse form of Status; nil fields leave the prior value
// unchanged. StepsAvatarGeneration is keyed by the stringified slide slot so a
// single slot can be patched without transmitting the whole list.
type StatusPatch struct {
	StepUnderstanding            *StepStatus                    `json:"stepUnderstanding,omitempty"`
	StepLookup                   *StepStatus                    `json:"stepLookup,omitempty"`
	StepLectureScriptGeneration  *StepStatus                    `json:"stepLectureScriptGeneration,omitempty"`
	StepSlideStructureGeneration *StepStatus                    `json:"stepSlideStructureGeneration,omitempty"`
	StepSlideGeneration          *int                           `json:"stepSlideGeneration,omitempty"`
	StepSlidePostprocessing      *StepStatus                    `json:"stepSlidePostprocessing,omitempty"`
	StepsAvatarGeneration        map[string]AvatarElementStatus `json:"stepsAvatarGeneration,omitempty"`
	LectureSummary               *string                        `json:"lectureSummary,omitempty"`
	SlideStructure               *SlideStructure                `json:"slideStructure,omitempty"`
}

func NewStatus() Status {
	return Status{
		StepUnderstanding:            StepNotStarted,
		StepLookup:                   StepNotStarted,
		StepLectureScriptGeneration:  StepNotStarted,
		StepSlideStructureGeneration: StepNotStarted,
		StepSlideGeneration:          0,
		StepSlidePostprocessing:      StepNotStarted,
		StepsAvatarGeneration:        []AvatarElementStatus{},
	}
}

// Clone returns a deep copy safe to hand to subscribers outside the store lock.
func (s Status) Clone() Status {
	out := s
	out.StepsAvatarGeneration = make([]AvatarElementStatus, len(s.StepsAvatarGeneration))
	copy(out.StepsAvatarGeneration, s.StepsAvatarGeneration)
	if s.LectureSummary != nil {
		v := *s.LectureSummary
		out.LectureSummary = &v
	}
	if s.SlideStructure != nil {
		pages := make([]SlidePage, len(s.SlideStructure.Pages))
		copy(pages, s.SlideStructure.Pages)
		out.SlideStructure = &SlideStructure{Pages: pages}
	}
	return out
}

func StepPtr(s StepStatus) *StepStatus { return &s }
func IntPtr(i int) *int                { return &i }
func StrPtr(s string) *string          { return &s }
