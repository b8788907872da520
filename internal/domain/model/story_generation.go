package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chapter is one page of a bilingual story.
type Chapter struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	SourceText string `json:"source_text"`
	TargetText string `json:"target_text"`
}

// StoryGeneration is the record persisted together with the credit debit.
type StoryGeneration struct {
	ID             uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string                       `gorm:"size:128;not null;index:idx_story_generations_user_created,priority:1" json:"user_id"`
	Title          string                       `gorm:"size:255;not null" json:"title"`
	Subject        string                       `gorm:"size:255;not null" json:"subject"`
	AgeGroup       string                       `gorm:"size:32;not null" json:"age_group"`
	SourceLanguage string                       `gorm:"size:16;not null" json:"source_language"`
	TargetLanguage string                       `gorm:"size:16;not null" json:"target_language"`
	Genre          string                       `gorm:"size:64" json:"genre"`
	ImageStyle     string                       `gorm:"size:64" json:"image_style"`
	Chapters       datatypes.JSONSlice[Chapter] `json:"chapters"`
	CoverImageURL  string                       `gorm:"size:1024" json:"cover_image_url"`
	CreatedAt      time.Time                    `gorm:"index:idx_story_generations_user_created,priority:2" json:"created_at"`
}

// TableName specifies the table name for GORM
func (StoryGeneration) TableName() string {
	return "story_generations"
}

// BeforeCreate assigns an id when the caller did not.
func (g *StoryGeneration) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
