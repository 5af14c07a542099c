package transport

import "fmt"

// Student is a simulated learner.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GradeLevel int    `json:"grade_level,omitempty"`
}

// Topic is a subject area a student can be assessed on.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SubjectName string `json:"subject_name,omitempty"`
}

// Exchange is the simulated student's answer to one tutor message.
type Exchange struct {
	Reply      string `json:"student_response"`
	IsComplete bool   `json:"is_complete"`
	TurnNumber int    `json:"turn_number,omitempty"`
}

// Prediction is one row of a batch submission.
type Prediction struct {
	StudentID      string `json:"student_id"`
	TopicID        string `json:"topic_id"`
	PredictedLevel int    `json:"predicted_level"`
}

// MSEResult is the scoring service's answer to a batch submission.
type MSEResult struct {
	MSEScore       float64 `json:"mse_score"`
	NumPredictions int     `json:"num_predictions,omitempty"`
}

// APIError is a non-2xx answer from the simulation service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
