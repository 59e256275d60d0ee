package answers

import "github.com/gurubase/gurubase-go/internal/models"

// Request models
type SummaryRequest struct {
	Question    string `json:"question"`
	GuruType    string `json:"guru_type"`
	BingeID     string `json:"binge_id,omitempty"`
	ParentSlug  string `json:"parent_question_slug,omitempty"`
	ShortAnswer bool   `json:"short_answer"`
}

type GenerationRequest struct {
	Question     string        `json:"question"`
	UserQuestion string        `json:"user_question,omitempty"`
	GuruType     string        `json:"guru_type"`
	Source       models.Source `json:"source"`
	ParentSlug   string        `json:"parent_question_slug,omitempty"`
	BingeID      string        `json:"binge_id,omitempty"`
	ShortAnswer  bool          `json:"short_answer"`
	// ExtraContext carries caller-supplied conversation context, e.g.
	// stripped GitHub issue comments.
	ExtraContext []string `json:"extra_context,omitempty"`
}

// Response models
type Summary struct {
	Question         string `json:"question"`
	UserQuestion     string `json:"user_question"`
	QuestionSlug     string `json:"question_slug"`
	Description      string `json:"description"`
	ValidQuestion    bool   `json:"valid_question"`
	CompletionTokens int    `json:"completion_tokens"`
	PromptTokens     int    `json:"prompt_tokens"`
	EnhancedQuestion string `json:"enhanced_question"`
}

// Metadata is the side information of a generated answer. It is only
// available after the chunk stream has been fully consumed.
type Metadata struct {
	TrustScore       int               `json:"trust_score"`
	References       models.References `json:"references"`
	CompletionTokens int               `json:"completion_tokens"`
	PromptTokens     int               `json:"prompt_tokens"`
	CtxRelevances    models.JSONMap    `json:"processed_ctx_relevances"`
}

// streamEvent is one line of the generation event stream.
type streamEvent struct {
	Chunk string `json:"chunk,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Metadata
}
