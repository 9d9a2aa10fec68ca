// Package progress holds the pipeline a project moves through and the
// rules that advance it as community engagement accrues.
package progress

// Progress statuses, in promotion order.
const (
	StatusIdeaSubmitted          = "idea_submitted"
	StatusCommunitySupport       = "community_support"
	StatusEmailCampaignActive    = "email_campaign_active"
	StatusOfficialAcknowledgment = "official_acknowledgment"
	StatusPlanningStage          = "planning_stage"
	StatusImplementation         = "implementation"
	StatusCompleted              = "completed"
)

// Engagement thresholds for automatic promotion.
const (
	CommunitySupportUpvotes = 25
	EmailCampaignEmails     = 50
)

var statusRank = map[string]int{
	StatusIdeaSubmitted:          0,
	StatusCommunitySupport:       1,
	StatusEmailCampaignActive:    2,
	StatusOfficialAcknowledgment: 3,
	StatusPlanningStage:          4,
	StatusImplementation:         5,
	StatusCompleted:              6,
}

// Valid reports whether s is a recognized progress status.
func Valid(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the promotion order, or -1 when s is
// not a recognized status.
func Rank(s string) int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Manual reports whether s is only reachable through a manual update.
// The automatic evaluation never moves a project out of these statuses.
func Manual(s string) bool {
	return Rank(s) >= statusRank[StatusOfficialAcknowledgment]
}

// NextStatus evaluates the automatic promotion rules against the current
// engagement counts. The email threshold is checked before the upvote
// threshold, so a project clearing both lands in email_campaign_active.
// Statuses from official_acknowledgment onward are never changed here.
func NextStatus(upvotes, emailsSent int, current string) string {
	if Manual(current) {
		return current
	}
	if emailsSent >= EmailCampaignEmails {
		return StatusEmailCampaignActive
	}
	if upvotes >= CommunitySupportUpvotes {
		return StatusCommunitySupport
	}
	return StatusIdeaSubmitted
}
