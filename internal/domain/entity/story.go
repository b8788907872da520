package entity

// StoryRequest is the user's choice of story parameters.
type StoryRequest struct {
	Subject        string `json:"subject" validate:"required,min=2,max=200"`
	AgeGroup       string `json:"ageGroup" validate:"required,oneof=3-5 6-8 9-12 13+"`
	SourceLanguage string `json:"sourceLanguage" validate:"required"`
	TargetLanguage string `json:"targetLanguage" validate:"required,nefield=SourceLanguage"`
	Genre          string `json:"genre" validate:"omitempty,max=64"`
	ImageStyle     string `json:"imageStyle" validate:"omitempty,max=64"`
}

// GeneratedStory is the LLM output before persistence.
type GeneratedStory struct {
	Title       string
	CoverPrompt string
	Chapters    []GeneratedChapter
}

type GeneratedChapter struct {
	Title      string `json:"title"`
	SourceText string `json:"source_text"`
	TargetText string `json:"target_text"`
}
