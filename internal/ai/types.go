package ai

// RequestType classifies what an AI request is asking the model to do.
type RequestType string

const (
	TypeTextGeneration    RequestType = "text_generation"
	TypeTextCompletion    RequestType = "text_completion"
	TypeTextContinuation  RequestType = "text_continuation"
	TypeCreativeWriting   RequestType = "creative_writing"
	TypeStoryWriting      RequestType = "story_writing"
	TypeCharacterCreation RequestType = "character_creation"
	TypePlotGeneration    RequestType = "plot_generation"
	TypeDialogueWriting   RequestType = "dialogue_writing"
	TypeSceneDescription  RequestType = "scene_description"

	TypeTextOptimization RequestType = "text_optimization"
	TypeTextRewriting    RequestType = "text_rewriting"
	TypeStyleImprovement RequestType = "style_improvement"
	TypeGrammarCheck     RequestType = "grammar_check"

	TypeTextAnalysis      RequestType = "text_analysis"
	TypeContentAnalysis   RequestType = "content_analysis"
	TypeStyleAnalysis     RequestType = "style_analysis"
	TypeCharacterAnalysis RequestType = "character_analysis"
	TypePlotAnalysis      RequestType = "plot_analysis"
	TypeThemeAnalysis     RequestType = "theme_analysis"

	TypeTextSummarization RequestType = "text_summarization"
	TypeChapterSummary    RequestType = "chapter_summary"

	TypeTranslation RequestType = "translation"

	TypeConversation      RequestType = "conversation"
	TypeQuestionAnswering RequestType = "question_answering"

	TypeWritingInspiration RequestType = "writing_inspiration"
	TypeBrainstorming      RequestType = "brainstorming"
)

// Category groups request types into coarse buckets used for routing and
// display.
func (t RequestType) Category() string {
	switch t {
	case TypeTextGeneration, TypeTextCompletion, TypeTextContinuation,
		TypeCreativeWriting, TypeStoryWriting, TypeCharacterCreation,
		TypePlotGeneration, TypeDialogueWriting, TypeSceneDescription:
		return "generation"
	case TypeTextOptimization, TypeTextRewriting, TypeStyleImprovement, TypeGrammarCheck:
		return "optimization"
	case TypeTextAnalysis, TypeContentAnalysis, TypeStyleAnalysis,
		TypeCharacterAnalysis, TypePlotAnalysis, TypeThemeAnalysis:
		return "analysis"
	case TypeTextSummarization, TypeChapterSummary:
		return "summarization"
	case TypeTranslation:
		return "translation"
	case TypeConversation, TypeQuestionAnswering:
		return "conversation"
	case TypeWritingInspiration, TypeBrainstorming:
		return "inspiration"
	default:
		return "unknown"
	}
}

func (t RequestType) IsCreative() bool {
	c := t.Category()
	return c == "generation" || c == "inspiration"
}

func (t RequestType) IsAnalytical() bool {
	c := t.Category()
	return c == "analysis" || c == "summarization"
}

// RequiresContext reports whether this request type normally needs document
// context to produce a useful result.
func (t RequestType) RequiresContext() bool {
	switch t {
	case TypeTextContinuation, TypeStoryWriting, TypeDialogueWriting,
		TypeSceneDescription, TypeTextAnalysis, TypeContentAnalysis,
		TypeStyleAnalysis, TypeCharacterAnalysis, TypePlotAnalysis,
		TypeThemeAnalysis, TypeTextSummarization, TypeChapterSummary,
		TypeWritingInspiration:
		return true
	}
	return false
}

// SupportsStreaming reports whether incremental delivery makes sense for
// this request type. Analysis and summarization results are consumed whole.
func (t RequestType) SupportsStreaming() bool {
	switch t.Category() {
	case "generation", "optimization", "inspiration":
		return true
	}
	return false
}

// ExecutionMode classifies how an AI feature obtains its input text.
type ExecutionMode string

const (
	ModeManualInput   ExecutionMode = "manual_input"
	ModeAutoContext   ExecutionMode = "auto_context"
	ModeAutoSelection ExecutionMode = "auto_selection"
	ModeHybrid        ExecutionMode = "hybrid"
)

func (m ExecutionMode) IsAutomatic() bool {
	return m == ModeAutoContext || m == ModeAutoSelection || m == ModeHybrid
}

func (m ExecutionMode) RequiresContext() bool {
	return m == ModeAutoContext || m == ModeHybrid
}

func (m ExecutionMode) RequiresSelection() bool {
	return m == ModeAutoSelection
}

// CanExecuteWith reports whether the mode has enough input to run given the
// available document context and text selection.
func (m ExecutionMode) CanExecuteWith(context, selection string) bool {
	switch m {
	case ModeManualInput:
		return true
	case ModeAutoContext:
		return context != ""
	case ModeAutoSelection:
		return selection != ""
	case ModeHybrid:
		return context != "" || selection != ""
	}
	return false
}

// InputSource names the input the mode would consume, preferring selection
// over context in hybrid mode.
func (m ExecutionMode) InputSource(context, selection string) string {
	switch m {
	case ModeManualInput:
		return "manual"
	case ModeAutoContext:
		return "context"
	case ModeAutoSelection:
		return "selection"
	case ModeHybrid:
		if selection != "" {
			return "selection"
		}
		if context != "" {
			return "context"
		}
		return "manual"
	}
	return "unknown"
}

// Priority orders requests by urgency. It only influences the suggested
// timeout and retry count for a request, never scheduling.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Weight returns the numeric rank of the priority, higher is more urgent.
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	case PriorityCritical:
		return 5
	}
	return 0
}

// TimeoutMultiplier scales the base request timeout for this priority.
func (p Priority) TimeoutMultiplier() float64 {
	switch p {
	case PriorityLow:
		return 0.5
	case PriorityHigh:
		return 1.5
	case PriorityUrgent:
		return 2.0
	case PriorityCritical:
		return 3.0
	default:
		return 1.0
	}
}

// RetryCount returns the suggested number of retries for this priority.
func (p Priority) RetryCount() int {
	w := p.Weight()
	if w == 0 {
		return 2
	}
	return w
}

// Capability is a static tag describing something a provider can do.
type Capability string

const (
	CapTextGeneration    Capability = "text_generation"
	CapStreamingOutput   Capability = "streaming_output"
	CapConversation      Capability = "conversation"
	CapCreativeWriting   Capability = "creative_writing"
	CapTextAnalysis      Capability = "text_analysis"
	CapTextOptimization  Capability = "text_optimization"
	CapTextSummarization Capability = "text_summarization"
	CapTranslation       Capability = "language_translation"
	CapQuestionAnswering Capability = "question_answering"
	CapContextAwareness  Capability = "context_awareness"
)
