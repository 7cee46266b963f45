package tasks

import (
	"testing"

	"voicedesk/app/service/session"

	"github.com/stretchr/testify/assert"
)

func TestAnnouncement(t *testing.T) {
	tests := []struct {
		name  string
		task  session.Task
		email string
		want  string
	}{
		{
			name:  "send invoice",
			task:  session.Task{Type: session.TaskSendInvoice, Document: "invoice_275.pdf"},
			email: "jane@example.com",
			want:  "Invoice invoice_275.pdf has been sent to jane@example.com.",
		},
		{
			name: "view invoice",
			task: session.Task{Type: session.TaskViewInvoice, Document: "invoice_7.pdf"},
			want: "Invoice invoice_7.pdf is now open for you to view.",
		},
		{
			name:  "order status prefers order number",
			task:  session.Task{Type: session.TaskCheckOrderStatus, Order: "42", Document: "order_42.pdf"},
			email: "jane@example.com",
			want:  "The status of order 42 has been sent to jane@example.com.",
		},
		{
			name:  "reset password",
			task:  session.Task{Type: session.TaskResetPassword},
			email: "jane@example.com",
			want:  "A password reset link has been sent to jane@example.com.",
		},
		{
			name: "missing email",
			task: session.Task{Type: session.TaskResetPassword},
			want: "A password reset link has been sent to your email address.",
		},
		{
			name: "missing document",
			task: session.Task{Type: session.TaskViewInvoice},
			want: "Invoice is now open for you to view.",
		},
		{
			name: "unknown type",
			task: session.Task{Type: "update_address"},
			want: fallbackAnnouncement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Announcement(tt.task, tt.email))
		})
	}
}

func TestOutstanding(t *testing.T) {
	assert.Equal(t, "send invoice invoice_1.pdf [pending]",
		Outstanding(session.Task{Type: session.TaskSendInvoice, Document: "invoice_1.pdf", Status: session.StatusPending}))
	assert.Equal(t, "reset password [failed]",
		Outstanding(session.Task{Type: session.TaskResetPassword, Status: session.StatusFailed}))
	assert.Equal(t, "update address [pending]",
		Outstanding(session.Task{Type: "update_address", Status: session.StatusPending}))
}

func TestFailureAnnouncement(t *testing.T) {
	assert.Equal(t, "Sorry, I could not send invoice invoice_1.pdf right now. Please try again later.",
		FailureAnnouncement(session.Task{Type: session.TaskSendInvoice, Document: "invoice_1.pdf"}))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(session.TaskSendInvoice))
	assert.False(t, Known("update_address"))
}
