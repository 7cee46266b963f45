package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"invalid input", InvalidInput("api", "message is required"), CodeInvalidInput, http.StatusBadRequest},
		{"not found", NotFound("conversation", "session %s not found", "abc"), CodeNotFound, http.StatusNotFound},
		{"malformed", MalformedExtraction("extract", "not json", errors.New("bad")), CodeMalformedExtraction, http.StatusBadGateway},
		{"malformed without cause", MalformedExtraction("extract", "{}", nil), CodeMalformedExtraction, http.StatusBadGateway},
		{"upstream", Upstream("llm", errors.New("timeout")), CodeUpstream, http.StatusBadGateway},
		{"persistence", Persistence("records", errors.New("disk full")), CodePersistence, http.StatusInternalServerError},
		{"plain", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, Code(tc.err))
			assert.Equal(t, tc.status, Status(tc.err))
		})
	}
}

func TestClassification_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("turn failed: %w", Upstream("llm", errors.New("503")))

	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, CodeUpstream, Code(err))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, ApologyMessage, PublicMessage(Upstream("llm", errors.New("x"))))
	assert.Equal(t, PersistenceMessage, PublicMessage(Persistence("records", errors.New("x"))))
	assert.Equal(t, "session abc not found", PublicMessage(NotFound("conversation", "session %s not found", "abc")))
	assert.Equal(t, ApologyMessage, PublicMessage(errors.New("plain")))
}
