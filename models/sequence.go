package models

import "gorm.io/gorm"

// Sequence defines one nurture sequence: an ordered set of emails keyed by
// day offset from enrollment. The processor is schedule-agnostic; it only
// sees the ordered steps.
type Sequence struct {
	gorm.Model
	SequenceType string `gorm:"not null;uniqueIndex" json:"sequence_type"` // assessment, guide-general, guide-legal, ...
	Name         string `gorm:"not null" json:"name"`
	Description  string `json:"description"`
	Status       string `gorm:"default:'active'" json:"status"` // active, paused

	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep is one scheduled email within a sequence.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	TemplateID uint `gorm:"not null;index" json:"template_id"`

	StepNumber int `gorm:"not null" json:"step_number"`
	DayOffset  int `gorm:"not null" json:"day_offset"` // days after enrollment

	Template Template `json:"-"`
}

// Template holds the subject and bodies for one sequence email. Bodies are
// Go html/text templates rendered against SequenceEmailData.
type Template struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`
	TextContent string `gorm:"type:text" json:"text_content"`
	Category    string `json:"category"`
}
