package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/transcript"
	"github.com/ent0n29/intakedesk/internal/transport"
)

func TestChatREPLConversation(t *testing.T) {
	color.NoColor = true
	in := strings.NewReader("I have a cough\n   \n/transcript\n/quit\n")
	var out bytes.Buffer

	repl := newChatREPL(in, &out, transport.NewMockClient(), intake.NewForm(), transcript.Options{Locale: "en-GB"})
	require.NoError(t, repl.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "* "+conversation.StartedNotice)
	assert.Contains(t, text, "Pediatrics • child • both")
	assert.Contains(t, text, "assistant: "+conversation.WelcomeText)
	assert.Contains(t, text, "assistant: Noted for pediatrics: I have a cough.")
	assert.Contains(t, text, "(Symptom Bot selected.)")
	assert.Contains(t, text, "you: I have a cough")
	assert.True(t, repl.sess.Closed())
}

func TestChatREPLRejectsInvalidIntake(t *testing.T) {
	color.NoColor = true
	form := intake.NewForm()
	require.NoError(t, form.Set(intake.FieldClinicName, " "))

	var out bytes.Buffer
	repl := newChatREPL(strings.NewReader("hello\n"), &out, transport.NewMockClient(), form, transcript.Options{})
	require.NoError(t, repl.run(context.Background()))

	assert.Contains(t, out.String(), "Cannot start: missing required fields: clinic_name")
	assert.Contains(t, out.String(), "The conversation is not active.")
}
