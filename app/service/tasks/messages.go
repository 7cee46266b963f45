package tasks

import (
	"strings"

	"voicedesk/app/service/session"
)

const (
	fallbackAnnouncement = "Your request has been processed."
	unknownEmail         = "your email address"
)

type template struct {
	// done is spoken once the action has succeeded.
	done string
	// outstanding describes the work while it is still open.
	outstanding string
}

var templates = map[session.TaskType]template{
	session.TaskSendInvoice: {
		done:        "Invoice {document} has been sent to {email}.",
		outstanding: "send invoice {document}",
	},
	session.TaskViewInvoice: {
		done:        "Invoice {document} is now open for you to view.",
		outstanding: "view invoice {document}",
	},
	session.TaskCheckOrderStatus: {
		done:        "The status of order {subject} has been sent to {email}.",
		outstanding: "check order status {subject}",
	},
	session.TaskResetPassword: {
		done:        "A password reset link has been sent to {email}.",
		outstanding: "reset password",
	},
}

// Known reports whether the task type has its own message template.
func Known(taskType session.TaskType) bool {
	_, ok := templates[taskType]
	return ok
}

// Announcement is the message spoken after the task ran successfully.
func Announcement(task session.Task, email string) string {
	tmpl, ok := templates[task.Type]
	if !ok {
		return fallbackAnnouncement
	}

	return render(tmpl.done, task, email)
}

// FailureAnnouncement is spoken when every attempt of the task failed.
func FailureAnnouncement(task session.Task) string {
	return "Sorry, I could not " + describe(task) + " right now. Please try again later."
}

// Outstanding renders a not yet completed task, e.g. "send invoice invoice_7.pdf [pending]".
func Outstanding(task session.Task) string {
	return describe(task) + " [" + string(task.Status) + "]"
}

func describe(task session.Task) string {
	tmpl, ok := templates[task.Type]
	if !ok {
		return strings.ReplaceAll(string(task.Type), "_", " ")
	}

	return render(tmpl.outstanding, task, "")
}

func render(text string, task session.Task, email string) string {
	if email == "" {
		email = unknownEmail
	}

	replacer := strings.NewReplacer(
		"{document}", task.Document,
		"{order}", task.Order,
		"{subject}", task.Subject(),
		"{email}", email,
	)

	// collapse the gap left by an empty placeholder
	result := strings.Join(strings.Fields(replacer.Replace(text)), " ")

	return strings.ReplaceAll(result, " .", ".")
}
