package model

type MCQOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type MCQQuestion struct {
	ID           int64       `json:"id"`
	QuestionText string      `json:"question_text"`
	QuestionType string      `json:"question_type,omitempty"`
	Points       float64     `json:"points,omitempty"`
	Options      []MCQOption `json:"options,omitempty"`
}

// MCQAnswer is one question's answer; a nil option and empty text clears it.
type MCQAnswer struct {
	QuestionID       int64   `json:"question_id"`
	SelectedOptionID *int64  `json:"selected_option_id"`
	TextAnswer       *string `json:"text_answer"`
}

func (a MCQAnswer) Empty() bool {
	return a.SelectedOptionID == nil && (a.TextAnswer == nil || *a.TextAnswer == "")
}

// MCQSheet is the locally cached answer set for a challenge.
type MCQSheet struct {
	Answers   map[int64]MCQAnswer `json:"answers"`
	Submitted bool                `json:"submitted"`
}

// PanelLayout stores the resizable panel sizes of one UI panel group.
type PanelLayout struct {
	GroupID string    `json:"group_id"`
	Sizes   []float64 `json:"sizes"`
}
