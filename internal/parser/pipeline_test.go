package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

var trusted = []string{"@buffalo.edu", "@piazza.com"}

func newMessage(from, subject, body string) model.InboundMessage {
	return model.InboundMessage{
		MessageID:     "msg-1",
		ReceivedAtUTC: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		From:          from,
		Subject:       subject,
		BodyText:      body,
	}
}

// A trusted Piazza digest fans out into one card per bullet.
func TestDigestSplit(t *testing.T) {
	p := New(trusted, model.SourceGmail)
	msg := newMessage("notifications@piazza.com", "Piazza Smart Digest",
		"1. New post in CSE312\n2. Follow-up from instructor\n3. Reminder to check thread")

	updates := p.Parse(msg)
	require.Len(t, updates, 3)

	seen := map[string]bool{}
	for _, u := range updates {
		assert.Equal(t, TemplatePiazzaDigest, u.Template)
		assert.True(t, u.Card.RequiresConfirmation)
		assert.Equal(t, model.SourcePiazzaEmail, u.Card.Source)
		assert.False(t, seen[u.Card.ProviderMessageID], "message ids must be distinct")
		seen[u.Card.ProviderMessageID] = true
	}
	assert.True(t, seen["msg-1-1"])
	assert.True(t, seen["msg-1-2"])
	assert.True(t, seen["msg-1-3"])
	assert.Equal(t, "New post in CSE312", updates[0].Card.BodyText)
}

// A high-confidence assignment with a due date needs no
// confirmation.
func TestHighConfidenceAssignment(t *testing.T) {
	p := New(trusted, model.SourceGmail)
	msg := newMessage("noreply@buffalo.edu", "CSE312 Assignment posted",
		"Assignment 3 is due on March 2 at 11:59pm. Submit via UBLearns.")

	updates := p.Parse(msg)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, TemplateUBLearnsAssignment, u.Template)
	assert.GreaterOrEqual(t, u.Card.ParseConfidence, 0.80)
	assert.False(t, u.Card.RequiresConfirmation)
	assert.Contains(t, u.Card.Tags, "course:CSE312")
	assert.Contains(t, u.Card.Tags, TagAssignment)
	assert.Equal(t, "due on March 2 at 11:59pm", u.DuePhrase)
	assert.Equal(t, model.SourceUBLearnsEmail, u.Card.Source)
}

// Untrusted senders produce exactly one low-confidence card.
func TestUntrustedSender(t *testing.T) {
	p := New(trusted, model.SourceGmail)
	msg := newMessage("spam@unknown.com", "Assignment alert", "You have won an assignment")

	updates := p.Parse(msg)
	require.Len(t, updates, 1)

	u := updates[0]
	assert.Equal(t, 0.20, u.Card.ParseConfidence)
	assert.True(t, u.Card.RequiresConfirmation)
	assert.Equal(t, []string{TagUntrustedSource}, u.Card.Tags)
	assert.Equal(t, TemplateUnknown, u.Template)
}

func TestDigestRequiresTwoBullets(t *testing.T) {
	p := New(trusted, model.SourceGmail)
	msg := newMessage("notifications@piazza.com", "Piazza Smart Digest",
		"1. Only one bullet here")

	updates := p.Parse(msg)
	require.Len(t, updates, 1)
	assert.Equal(t, "msg-1", updates[0].Card.ProviderMessageID, "single bullet keeps the original id")
}

func TestBulletStyles(t *testing.T) {
	p := New(trusted, model.SourceGmail)
	msg := newMessage("notifications@piazza.com", "Weekly summary",
		"- first item\n* second item\n• third item\n4) fourth item")

	updates := p.Parse(msg)
	assert.Len(t, updates, 4)
}

func TestTemplateClassifier(t *testing.T) {
	cases := []struct {
		sender, subject, want string
	}{
		{"notifications@piazza.com", "Piazza Smart Digest", TemplatePiazzaDigest},
		{"notifications@piazza.com", "New post in CSE312", TemplatePiazzaRealtime},
		{"notifications@piazza.com", "Welcome to Piazza", TemplatePiazzaGeneric},
		{"noreply@buffalo.edu", "CSE312 Assignment posted", TemplateUBLearnsAssignment},
		{"noreply@buffalo.edu", "Quiz 4 now open", TemplateUBLearnsQuiz},
		{"noreply@buffalo.edu", "Course announcement", TemplateUBLearnsAnnouncement},
		{"noreply@buffalo.edu", "Grade update", TemplateUBLearnsGeneric},
		{"someone@gmail.com", "lunch?", TemplateUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyTemplate(tc.sender, tc.subject),
			"sender=%s subject=%s", tc.sender, tc.subject)
	}
}

func TestCourseCodeNormalization(t *testing.T) {
	tags := extractTags("cse 442 project update", "")
	assert.Contains(t, tags, "course:CSE442")
}

func TestDuePhraseVariants(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"due on March 2 at 11:59pm", "due on March 2 at 11:59pm"},
		{"It is due March 2", "due March 2"},
		{"submit by April 15, 2026", "by April 15, 2026"},
		{"Due on Sep 9 at 5pm sharp", "Due on Sep 9 at 5pm"},
		{"no deadline mentioned", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractDuePhrase(tc.text), "text=%q", tc.text)
	}
}

func TestConfidenceArithmetic(t *testing.T) {
	// All bonuses: 0.5 + 0.25 + 0.2 + 0.1 = 1.05, clamped to 0.99.
	assert.Equal(t, 0.99, score(TemplateUBLearnsAssignment, []string{"course:CSE312"}, "due on March 2", false))
	// Digest bullet with course tag: 0.5 + 0.2 + 0.1 - 0.25 = 0.55.
	assert.InDelta(t, 0.55, score(TemplatePiazzaDigest, []string{"course:CSE312"}, "", true), 1e-9)
	// Unknown template, nothing found, confirmation: 0.5 - 0.25 = 0.25.
	assert.InDelta(t, 0.25, score(TemplateUnknown, nil, "", true), 1e-9)
}

func TestRequiresConfirmationGate(t *testing.T) {
	assert.False(t, requiresConfirmation(TemplateUBLearnsAssignment, []string{TagAssignment}, "due on March 2"))
	assert.True(t, requiresConfirmation(TemplateUBLearnsAssignment, []string{TagAssignment}, ""))
	assert.True(t, requiresConfirmation(TemplatePiazzaDigest, nil, ""))
	assert.True(t, requiresConfirmation(TemplateUnknown, nil, ""))
	assert.False(t, requiresConfirmation(TemplateUBLearnsAnnouncement, []string{TagAnnouncement}, ""))
}

func TestContentHashStamped(t *testing.T) {
	p := New(trusted, model.SourceGmail)
	msg := newMessage("noreply@buffalo.edu", "CSE312 Assignment posted", "body text")
	updates := p.Parse(msg)
	require.Len(t, updates, 1)
	assert.Equal(t, model.ContentHash("body text"), updates[0].Card.ContentHash)
}
