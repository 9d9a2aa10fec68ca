package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackDraft(t *testing.T) {
	req := DraftRequest{
		IssueType:    "pothole",
		Location:     "5th Ave & Main St",
		Description:  "Deep pothole damaging car tires",
		UrgencyLevel: "medium",
	}

	draft := FallbackDraft(req)

	assert.Equal(t, "Request to address pothole at 5th Ave & Main St", draft.Subject)
	assert.Contains(t, draft.Body, "5th Ave & Main St")
	assert.Contains(t, draft.Body, "Deep pothole damaging car tires")
	assert.Equal(t, DefaultRecipient, draft.Recipient)
	assert.NotContains(t, draft.Body, "urgent safety concern")
}

func TestFallbackDraftDeterministic(t *testing.T) {
	req := DraftRequest{
		IssueType:    "crosswalk",
		Location:     "Oak Street School",
		Description:  "No crosswalk near the school entrance",
		UrgencyLevel: "high",
	}

	first := FallbackDraft(req)
	second := FallbackDraft(req)
	assert.Equal(t, first, second)
	assert.Contains(t, first.Body, "urgent safety concern")
	assert.Contains(t, first.Subject, "missing or unsafe crosswalk")
}

func TestFallbackDraftUnknownIssueType(t *testing.T) {
	draft := FallbackDraft(DraftRequest{
		IssueType:   "drainage",
		Location:    "Elm St",
		Description: "Standing water after rain",
	})
	assert.Contains(t, draft.Subject, "infrastructure issue")
}

func TestGenerateEmailDraftWithoutAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	req := DraftRequest{
		IssueType:    "streetlight",
		Location:     "Pine & 9th",
		Description:  "Light has been out for two weeks",
		UrgencyLevel: "low",
	}

	assert.Equal(t, FallbackDraft(req), GenerateEmailDraft(req))
}
