package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// DefaultRecipient receives outreach mail when the model does not name a
// better address.
const DefaultRecipient = "publicworks@cityhall.gov"

type GeminiRequest struct {
	Contents []GeminiContent `json:"contents"`
}

type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text"`
}

type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Content GeminiContent `json:"content"`
}

// EmailDraft is the outreach email generated for a newly submitted issue.
type EmailDraft struct {
	Subject   string
	Body      string
	Recipient string
}

// DraftRequest describes the issue the email should advocate for.
type DraftRequest struct {
	IssueType    string
	Location     string
	Description  string
	UrgencyLevel string
}

var issueLabels = map[string]string{
	"crosswalk":   "missing or unsafe crosswalk",
	"pothole":     "pothole",
	"sidewalk":    "damaged sidewalk",
	"streetlight": "broken streetlight",
	"other":       "infrastructure issue",
}

func issueLabel(issueType string) string {
	if label, ok := issueLabels[issueType]; ok {
		return label
	}
	return "infrastructure issue"
}

// GenerateEmailDraft asks Gemini for an outreach email about the issue.
// Any failure falls back to the deterministic template so that project
// submission never blocks on the model.
func GenerateEmailDraft(req DraftRequest) EmailDraft {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return FallbackDraft(req)
	}

	prompt := fmt.Sprintf(`You are helping a resident write a short, respectful email to their city government about a local infrastructure problem.

ISSUE TYPE: %s
LOCATION: %s
DESCRIPTION: %s
URGENCY: %s

Write an email that states the problem, where it is, why it matters to residents, and asks for a concrete follow-up. Keep it under 200 words and sign it "A Concerned Resident".

Reply STRICTLY as JSON:
{
  "subject": "one-line email subject",
  "body": "full email body",
  "recipient": "best municipal email address, or %s if unsure"
}`, issueLabel(req.IssueType), req.Location, req.Description, req.UrgencyLevel, DefaultRecipient)

	reqBody := GeminiRequest{
		Contents: []GeminiContent{
			{
				Parts: []GeminiPart{
					{Text: prompt},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return FallbackDraft(req)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent?key=%s", apiKey)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return FallbackDraft(req)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FallbackDraft(req)
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return FallbackDraft(req)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return FallbackDraft(req)
	}

	aiResponse := geminiResp.Candidates[0].Content.Parts[0].Text
	aiResponse = strings.TrimSpace(aiResponse)
	aiResponse = strings.Trim(aiResponse, "`")
	aiResponse = strings.TrimPrefix(aiResponse, "json")
	aiResponse = strings.TrimSpace(aiResponse)

	var result struct {
		Subject   string `json:"subject"`
		Body      string `json:"body"`
		Recipient string `json:"recipient"`
	}

	if err := json.Unmarshal([]byte(aiResponse), &result); err != nil {
		return FallbackDraft(req)
	}
	if result.Subject == "" || result.Body == "" {
		return FallbackDraft(req)
	}
	if result.Recipient == "" {
		result.Recipient = DefaultRecipient
	}

	return EmailDraft{
		Subject:   result.Subject,
		Body:      result.Body,
		Recipient: result.Recipient,
	}
}

// FallbackDraft builds the templated email used when the model is
// unavailable. It is a pure function of its input.
func FallbackDraft(req DraftRequest) EmailDraft {
	label := issueLabel(req.IssueType)

	urgencyNote := ""
	if req.UrgencyLevel == "high" {
		urgencyNote = " This is an urgent safety concern and I ask that it be prioritized."
	}

	subject := fmt.Sprintf("Request to address %s at %s", label, req.Location)
	body := fmt.Sprintf(`Dear Public Works Department,

I am writing to report a %s at %s.

%s

This issue affects residents who rely on this area every day.%s I would appreciate confirmation that it has been logged and an estimate of when it can be addressed.

Thank you for your attention.

Sincerely,
A Concerned Resident`, label, req.Location, req.Description, urgencyNote)

	return EmailDraft{
		Subject:   subject,
		Body:      body,
		Recipient: DefaultRecipient,
	}
}
