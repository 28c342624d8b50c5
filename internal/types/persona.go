package types

// Persona biases LLM tone, depth and length. The core never mutates it.
type Persona struct {
	ID              string      `json:"id,omitempty"`
	Role            string      `json:"role"`
	Language        string      `json:"language"`
	Preferences     Preferences `json:"preferences"`
	EnrolledCourses []string    `json:"enrolledCourses,omitempty"`
}

type Preferences struct {
	AnswerLength    string `json:"answerLength,omitempty"`
	LanguageLevel   string `json:"languageLevel,omitempty"`
	ExpertiseLevel  string `json:"expertiseLevel,omitempty"`
	IncludePictures string `json:"includePictures,omitempty"`
}

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"

	LanguageEnglish = "english"
	LanguageGerman  = "german"
)
