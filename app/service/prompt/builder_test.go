package prompt

import (
	"testing"

	"voicedesk/app/service/session"

	"github.com/stretchr/testify/assert"
)

func TestFormatList(t *testing.T) {
	assert.Equal(t, "", FormatList(nil))
	assert.Equal(t, "A", FormatList([]string{"A"}))
	assert.Equal(t, "A and B", FormatList([]string{"A", "B"}))
	assert.Equal(t, "A, B and C", FormatList([]string{"A", "B", "C"}))
}

func TestBuild_EmptyStateHasNoSections(t *testing.T) {
	out := Build(session.State{})

	assert.Empty(t, out)

	system := System(session.State{})
	assert.NotContains(t, system, "Topic")
	assert.NotContains(t, system, "Document")
	assert.NotContains(t, system, "Outstanding task")
	assert.NotContains(t, system, "Conversation context")
}

func TestBuild_SingularPhrasing(t *testing.T) {
	out := Build(session.State{
		Topics:    []string{"Password Reset"},
		Documents: []string{"order_42.pdf"},
		Tasks:     []session.Task{{Type: session.TaskResetPassword, Status: session.StatusPending}},
	})

	assert.Contains(t, out, "Topic discussed so far: Password Reset.")
	assert.Contains(t, out, "Document referenced: order_42.pdf.")
	assert.Contains(t, out, "Outstanding task: reset password [pending].")
	assert.NotContains(t, out, "Topics")
}

func TestBuild_PluralPhrasing(t *testing.T) {
	out := Build(session.State{
		Topics:    []string{"Password Reset", "Billing Question", "Shipping Issue"},
		Documents: []string{"order_42.pdf", "invoice_7.pdf"},
		Tasks: []session.Task{
			{Type: session.TaskSendInvoice, Document: "invoice_7.pdf", Status: session.StatusPending},
			{Type: session.TaskCheckOrderStatus, Order: "42", Status: session.StatusPending},
		},
	})

	assert.Contains(t, out, "Topics discussed so far: Password Reset, Billing Question and Shipping Issue.")
	assert.Contains(t, out, "Documents referenced: order_42.pdf and invoice_7.pdf.")
	assert.Contains(t, out, "Outstanding tasks: send invoice invoice_7.pdf [pending]; check order status 42 [pending].")
}

func TestBuild_SkipsCompletedTasks(t *testing.T) {
	out := Build(session.State{
		Tasks: []session.Task{
			{Type: session.TaskSendInvoice, Document: "invoice_7.pdf", Status: session.StatusCompleted},
			{Type: session.TaskResetPassword, Status: session.StatusFailed},
		},
	})

	assert.Equal(t, "Outstanding task: reset password [failed].", out)

	out = Build(session.State{
		Tasks: []session.Task{{Type: session.TaskSendInvoice, Status: session.StatusCompleted}},
	})
	assert.Empty(t, out)
}

func TestSystem_AppendsContext(t *testing.T) {
	system := System(session.State{Documents: []string{"order_42.pdf", "invoice_7.pdf"}})

	assert.Contains(t, system, "customer-service voice assistant")
	assert.Contains(t, system, "Conversation context:\nDocuments referenced: order_42.pdf and invoice_7.pdf.")
}
