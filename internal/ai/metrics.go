package ai

import (
	"fmt"
	"strings"
	"time"
)

// QualityMetrics captures timing, size, and quality measurements for a single
// response. Scores are in [0,1]; a zero score means "not assessed" and is
// excluded from the overall average.
type QualityMetrics struct {
	ResponseTime   time.Duration `json:"response_time"`
	TokenCount     int           `json:"token_count"`
	WordCount      int           `json:"word_count"`
	CharacterCount int           `json:"character_count"`

	Relevance  float64 `json:"relevance_score"`
	Coherence  float64 `json:"coherence_score"`
	Creativity float64 `json:"creativity_score"`
	Accuracy   float64 `json:"accuracy_score"`

	ModelConfidence float64 `json:"model_confidence"`
	ProcessingCost  float64 `json:"processing_cost"`
	CacheHit        bool    `json:"cache_hit"`

	UserRating   int    `json:"user_rating,omitempty"` // 1-5, 0 = unrated
	UserFeedback string `json:"user_feedback,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func NewQualityMetrics() QualityMetrics {
	return QualityMetrics{CreatedAt: time.Now()}
}

// OverallQualityScore averages the quality scores that have been set.
// Unset (zero) scores do not drag the average down.
func (m *QualityMetrics) OverallQualityScore() float64 {
	var sum float64
	var n int
	for _, s := range []float64{m.Relevance, m.Coherence, m.Creativity, m.Accuracy} {
		if s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Grade maps the overall quality score to a letter grade.
func (m *QualityMetrics) Grade() string {
	score := m.OverallQualityScore()
	switch {
	case score >= 0.9:
		return "A+"
	case score >= 0.8:
		return "A"
	case score >= 0.7:
		return "B"
	case score >= 0.6:
		return "C"
	case score >= 0.5:
		return "D"
	default:
		return "F"
	}
}

func (m *QualityMetrics) IsHighQuality() bool {
	return m.OverallQualityScore() >= 0.8
}

func (m *QualityMetrics) IsFastResponse() bool {
	return m.ResponseTime < 3*time.Second
}

// CalculateContentMetrics derives character, word, and estimated token counts
// from the response content. Token estimate is the usual chars/4 heuristic.
func (m *QualityMetrics) CalculateContentMetrics(content string) {
	if content == "" {
		return
	}
	m.CharacterCount = len(content)
	m.WordCount = len(strings.Fields(content))
	m.TokenCount = m.CharacterCount / 4
}

// SetScores updates the provided quality scores. Negative arguments leave the
// corresponding score untouched; values outside [0,1] are rejected.
func (m *QualityMetrics) SetScores(relevance, coherence, creativity, accuracy float64) error {
	set := func(dst *float64, v float64, name string) error {
		if v < 0 {
			return nil
		}
		if v > 1 {
			return fmt.Errorf("%s score must be between 0.0 and 1.0, got %v", name, v)
		}
		*dst = v
		return nil
	}
	if err := set(&m.Relevance, relevance, "relevance"); err != nil {
		return err
	}
	if err := set(&m.Coherence, coherence, "coherence"); err != nil {
		return err
	}
	if err := set(&m.Creativity, creativity, "creativity"); err != nil {
		return err
	}
	return set(&m.Accuracy, accuracy, "accuracy")
}

// SetUserFeedback records a user rating (1-5) with optional free-form text.
func (m *QualityMetrics) SetUserFeedback(rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("user rating must be between 1 and 5, got %d", rating)
	}
	m.UserRating = rating
	m.UserFeedback = feedback
	return nil
}
