package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states reported by the service.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Generation defaults used by the web client.
const (
	DefaultModel       = "sora-2"
	DefaultAspectRatio = "9:16"
	DefaultDuration    = 10
)

// GenerateRequest is the body of a video generation submission. ImageURL
// accepts an http(s) URL or a data URL with inline image bytes.
type GenerateRequest struct {
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	Duration    int    `json:"duration"`
	ImageURL    string `json:"url,omitempty"`
}

// Normalize trims the prompt, fills defaults and rejects an empty prompt.
func (r GenerateRequest) Normalize() (GenerateRequest, error) {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" {
		return r, ErrInvalidPrompt
	}
	if strings.TrimSpace(r.Model) == "" {
		r.Model = DefaultModel
	}
	if strings.TrimSpace(r.AspectRatio) == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	if r.Duration <= 0 {
		r.Duration = DefaultDuration
	}
	r.ImageURL = strings.TrimSpace(r.ImageURL)
	return r, nil
}

// VideoResult is one rendered video of a succeeded job.
type VideoResult struct {
	PID             string `json:"pid"`
	URL             string `json:"url"`
	RemoveWatermark bool   `json:"removeWatermark"`
}

// Job is the server-tracked generation task.
type Job struct {
	ID          string
	Status      JobStatus
	Progress    int
	StartedAt   time.Time
	EndedAt     *time.Time
	CallbackURL string
	Error       string
	Results     []VideoResult
}

type jobWire struct {
	ID            string        `json:"id"`
	Status        JobStatus     `json:"status"`
	Progress      int           `json:"progress"`
	StartTime     int64         `json:"start_time"`
	EndTime       *int64        `json:"end_time,omitempty"`
	CallbackURL   string        `json:"callback_url"`
	Error         string        `json:"error,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Results       []VideoResult `json:"results,omitempty"`
}

// MarshalJSON encodes the job using the service wire layout (unix seconds).
func (j Job) MarshalJSON() ([]byte, error) {
	w := jobWire{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		CallbackURL: j.CallbackURL,
		Error:       j.Error,
		Results:     j.Results,
	}
	if !j.StartedAt.IsZero() {
		w.StartTime = j.StartedAt.Unix()
	}
	if j.EndedAt != nil {
		end := j.EndedAt.Unix()
		w.EndTime = &end
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the service wire layout. failure_reason is used when
// error is empty.
func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*j = Job{
		ID:          w.ID,
		Status:      w.Status,
		Progress:    w.Progress,
		CallbackURL: w.CallbackURL,
		Error:       firstNonEmpty(w.Error, w.FailureReason),
		Results:     w.Results,
	}
	if w.StartTime > 0 {
		j.StartedAt = time.Unix(w.StartTime, 0).UTC()
	}
	if w.EndTime != nil {
		end := time.Unix(*w.EndTime, 0).UTC()
		j.EndedAt = &end
	}
	return nil
}

// Validate checks the job invariants.
func (j Job) Validate() error {
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("job %s: progress %d out of range", j.ID, j.Progress)
	}
	switch j.Status {
	case JobStatusSucceeded:
		if len(j.Results) == 0 {
			return ErrEmptyResult
		}
	case JobStatusFailed:
		if strings.TrimSpace(j.Error) == "" {
			return fmt.Errorf("job %s: failed without error", j.ID)
		}
	case JobStatusPending, JobStatusProcessing:
	default:
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if j.Status.Terminal() != (j.EndedAt != nil) {
		return fmt.Errorf("job %s: end time inconsistent with status %s", j.ID, j.Status)
	}
	return nil
}

// Clone returns a deep copy so published snapshots cannot be mutated.
func (j Job) Clone() Job {
	if j.EndedAt != nil {
		end := *j.EndedAt
		j.EndedAt = &end
	}
	if j.Results != nil {
		j.Results = append([]VideoResult(nil), j.Results...)
	}
	return j
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
