package types

// PromptRequest is the root of one pipeline run. Immutable once accepted.
type PromptRequest struct {
	PromptID    string  `json:"promptId"`
	CourseID    string  `json:"courseId"`
	Prompt      string  `json:"prompt"`
	UserPersona Persona `json:"userPersona"`
}

type ChunkImage struct {
	ImageBase64 string `json:"image"`
	Description string `json:"description"`
}

// DocumentChunk is one retrieval result. Opaque to the orchestration layer.
type DocumentChunk struct {
	Content []string     `json:"content"`
	Images  []ChunkImage `json:"images,omitempty"`
	Score   float64      `json:"score,omitempty"`
}

type LectureAsset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
	Data        string `json:"data"`
}

// LectureScript is the single coherent narrative produced once per prompt.
type LectureScript struct {
	Text   string         `json:"lectureScript"`
	Assets []LectureAsset `json:"assets"`
}

// SlideDraft is an ordered chunk of the lecture script with a chosen layout,
// prior to field filling. Index is 1-based.
type SlideDraft struct {
	Index      int    `json:"index"`
	Content    string `json:"content"`
	LayoutName string `json:"layout"`
}

// SlideTask is the unit of work in the avatar render queue, one per slide.
type SlideTask struct {
	PromptID      string
	SlideIndex    int
	NarrationText string
	Persona       Persona
	CourseID      string
}
