package notify

import (
	"fmt"
	"strings"
)

// PriorityFor returns the priority assigned to every notification of kind k.
func PriorityFor(k Kind) Priority {
	switch k {
	case KindSystemMaintenance:
		return PriorityUrgent
	case KindInterviewScheduled, KindInterviewReminder, KindApplicationAccepted,
		KindPasswordChanged, KindVerificationStatusChanged:
		return PriorityHigh
	case KindNewJobMatching, KindProfileIncomplete, KindMessageRead:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// ChannelsFor returns the channels attempted for kind k. in_app is always
// first.
func ChannelsFor(k Kind) []Channel {
	switch k {
	case KindInterviewReminder:
		return []Channel{ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS}
	case KindPasswordChanged:
		return []Channel{ChannelInApp, ChannelEmail, ChannelSMS}
	case KindInterviewScheduled, KindApplicationAccepted, KindApplicationStatusChanged:
		return []Channel{ChannelInApp, ChannelEmail, ChannelPush}
	case KindNewMessage:
		return []Channel{ChannelInApp, ChannelPush}
	case KindApplicationSubmitted, KindApplicationRejected, KindJobExpired,
		KindJobApplicationReceived, KindVerificationStatusChanged, KindAccountCreated,
		KindSystemMaintenance:
		return []Channel{ChannelInApp, ChannelEmail}
	default:
		return []Channel{ChannelInApp}
	}
}

var genericTitles = map[Kind]string{
	KindNewJobMatching:            "New job matching your profile",
	KindJobStatusChanged:          "Job status updated",
	KindJobExpired:                "Job posting expired",
	KindJobApplicationReceived:    "New application received",
	KindProfileIncomplete:         "Complete your profile",
	KindDocumentUploaded:          "Document uploaded",
	KindVerificationStatusChanged: "Verification status updated",
	KindAccountCreated:            "Welcome aboard",
	KindPasswordChanged:           "Your password was changed",
	KindSystemMaintenance:         "Scheduled maintenance",
	KindNewMessage:                "New message",
	KindMessageRead:               "Message read",
}

// render produces the title, message and actions one recipient sees.
func render(ev Event, r Recipient) (title, message string, actions []Action) {
	switch p := ev.Payload.(type) {
	case ApplicationPayload:
		link := []Action{{Label: "View application", URL: "/applications/" + p.ApplicationID}}
		if r.Model == ModelCandidate {
			return "Application submitted",
				fmt.Sprintf("Your application for %s has been submitted.", jobName(p.JobTitle)), link
		}
		return "New application received",
			fmt.Sprintf("A new application was received for %s.", jobName(p.JobTitle)), link

	case StatusChangePayload:
		link := []Action{{Label: "View application", URL: "/applications/" + p.ApplicationID}}
		switch ev.Kind {
		case KindApplicationAccepted:
			return "Congratulations!",
				fmt.Sprintf("Your application for %s has been accepted.", jobName(p.JobTitle)), link
		case KindApplicationRejected:
			return "Application update",
				fmt.Sprintf("Your application for %s was not retained.", jobName(p.JobTitle)), link
		}
		if r.Model != ModelCandidate && p.To == "withdrawn" {
			return "Application withdrawn",
				fmt.Sprintf("A candidate withdrew their application for %s.", jobName(p.JobTitle)), link
		}
		msg := fmt.Sprintf("Your application for %s is now %s.", jobName(p.JobTitle), p.To)
		if r.Model != ModelCandidate {
			msg = fmt.Sprintf("Application for %s moved from %s to %s.", jobName(p.JobTitle), p.From, p.To)
		}
		if p.Comment != "" {
			msg += " " + p.Comment
		}
		return "Application status updated", msg, link

	case InterviewPayload:
		actions = []Action{{Label: "View interview", URL: "/interviews/" + p.InterviewID}}
		if r.Model == ModelCandidate && ev.Kind == KindInterviewScheduled {
			actions = append(actions, Action{Label: "Confirm attendance", URL: "/interviews/" + p.InterviewID + "/confirm"})
		}
		when := p.ScheduledDate.UTC().Format("Mon 02 Jan 2006 15:04 MST")
		venue := venueOf(p)
		if ev.Kind == KindInterviewReminder {
			return "Interview reminder",
				fmt.Sprintf("Your %s interview for %s is on %s%s.", p.Type, jobName(p.JobTitle), when, venue), actions
		}
		title = "Interview scheduled"
		if p.Rescheduled {
			title = "Interview rescheduled"
		}
		return title,
			fmt.Sprintf("A %s interview for %s is scheduled on %s%s.", p.Type, jobName(p.JobTitle), when, venue), actions

	case Data:
		title = p["title"]
		if title == "" {
			title = genericTitles[ev.Kind]
		}
		message = p["message"]
		if message == "" {
			message = title + "."
		}
		if url := p["url"]; url != "" {
			actions = []Action{{Label: "Open", URL: url}}
		}
		return title, message, actions
	}

	title = genericTitles[ev.Kind]
	if title == "" {
		title = strings.ReplaceAll(string(ev.Kind), "_", " ")
	}
	return title, title + ".", nil
}

func jobName(title string) string {
	if title == "" {
		return "this position"
	}
	return title
}

func venueOf(p InterviewPayload) string {
	switch {
	case p.MeetingLink != "":
		return " (" + p.MeetingLink + ")"
	case p.Location != "":
		return " at " + p.Location
	}
	return ""
}
