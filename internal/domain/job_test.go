package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobUnmarshalWireLayout(t *testing.T) {
	raw := `{"id":"task-1","status":"failed","progress":100,"start_time":1700000000,"end_time":1700000060,
		"callback_url":"","failure_reason":"content policy"}`
	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))

	assert.Equal(t, "task-1", job.ID)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "content policy", job.Error)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), job.StartedAt)
	require.NotNil(t, job.EndedAt)
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), *job.EndedAt)
	assert.NoError(t, job.Validate())
}

func TestJobMarshalKeepsUnixSeconds(t *testing.T) {
	start := time.Unix(1700000000, 0)
	job := Job{ID: "a", Status: JobStatusProcessing, Progress: 40, StartedAt: start}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 1700000000, decoded["start_time"])
	_, hasEnd := decoded["end_time"]
	assert.False(t, hasEnd)
}

func TestJobValidate(t *testing.T) {
	end := time.Now()
	cases := []struct {
		name string
		job  Job
		ok   bool
	}{
		{"processing", Job{ID: "1", Status: JobStatusProcessing, Progress: 40}, true},
		{"succeeded", Job{ID: "1", Status: JobStatusSucceeded, Progress: 100, EndedAt: &end, Results: []VideoResult{{PID: "a"}}}, true},
		{"succeeded without results", Job{ID: "1", Status: JobStatusSucceeded, EndedAt: &end}, false},
		{"failed without error", Job{ID: "1", Status: JobStatusFailed, EndedAt: &end}, false},
		{"terminal without end", Job{ID: "1", Status: JobStatusFailed, Error: "x"}, false},
		{"progress out of range", Job{ID: "1", Status: JobStatusPending, Progress: 101}, false},
		{"unknown status", Job{ID: "1", Status: "queued"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.job.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
	assert.True(t, errors.Is(Job{Status: JobStatusSucceeded, EndedAt: &end}.Validate(), ErrEmptyResult))
}

func TestGenerateRequestNormalize(t *testing.T) {
	req, err := GenerateRequest{Prompt: "  a cat on grass  "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "a cat on grass", req.Prompt)
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, DefaultAspectRatio, req.AspectRatio)
	assert.Equal(t, DefaultDuration, req.Duration)

	_, err = GenerateRequest{Prompt: " "}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidPrompt)
}

func TestCredentialsValidate(t *testing.T) {
	assert.NoError(t, Credentials{AccessToken: "a", RefreshToken: "r"}.Validate())
	assert.ErrorIs(t, Credentials{AccessToken: "a"}.Validate(), ErrInvalidCredentials)
	assert.ErrorIs(t, Credentials{RefreshToken: "r"}.Validate(), ErrInvalidCredentials)

	c := Credentials{AccessToken: "a", RefreshToken: "r", Profile: Profile{Username: "neo"}}
	rotated := c.WithTokens("a2", "r2")
	assert.Equal(t, "neo", rotated.Profile.Username)
	assert.Equal(t, "a", c.AccessToken)
}
