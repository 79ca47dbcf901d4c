package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"mira/internal/model"
)

// Template names produced by the classifier.
const (
	TemplatePiazzaDigest         = "piazza_digest"
	TemplatePiazzaRealtime       = "piazza_realtime"
	TemplatePiazzaGeneric        = "piazza_generic"
	TemplateUBLearnsAssignment   = "ublearns_assignment"
	TemplateUBLearnsQuiz         = "ublearns_quiz"
	TemplateUBLearnsAnnouncement = "ublearns_announcement"
	TemplateUBLearnsGeneric      = "ublearns_generic"
	TemplateUnknown              = "unknown"
)

// Tags attached to update cards.
const (
	TagUntrustedSource  = "type:untrusted_source"
	TagAssignment       = "type:assignment"
	TagQuiz             = "type:quiz"
	TagResponseRequired = "type:response_required"
	TagAnnouncement     = "type:announcement"
)

const untrustedConfidence = 0.20

var (
	courseCodePattern = regexp.MustCompile(`\b[a-z]{3}\s?\d{3}\b`)
	duePhrasePattern  = regexp.MustCompile(
		`(?i)((due|by)\s+(on\s+)?[a-z]{3,9}\s+\d{1,2}(,\s*\d{4})?(\s+at\s+\d{1,2}:?\d{0,2}\s*(am|pm)?)?)`)
	bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// ParsedUpdate wraps one update card with the template that matched and the
// raw due-date phrase, if any was found.
type ParsedUpdate struct {
	Card      model.UpdateCard
	Template  string
	DuePhrase string
}

// Pipeline converts one inbound message into one or more update cards. It is
// a pure function: no I/O, no stored state beyond configuration.
type Pipeline struct {
	trustedSenders []string
	baseSource     model.Source
}

// New builds a pipeline for one account. trustedSenders are sender/domain
// substrings; baseSource is the provider's source used when no mailer-
// specific source applies.
func New(trustedSenders []string, baseSource model.Source) *Pipeline {
	lowered := make([]string, 0, len(trustedSenders))
	for _, s := range trustedSenders {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			lowered = append(lowered, s)
		}
	}
	return &Pipeline{trustedSenders: lowered, baseSource: baseSource}
}

// Parse runs the full pipeline over one message. The result is never empty.
func (p *Pipeline) Parse(msg model.InboundMessage) []ParsedUpdate {
	if !p.trusted(msg.From) {
		return []ParsedUpdate{p.untrustedCard(msg)}
	}

	parts := splitDigest(msg)
	updates := make([]ParsedUpdate, 0, len(parts))
	for _, part := range parts {
		updates = append(updates, p.buildUpdate(part))
	}
	return updates
}

func (p *Pipeline) trusted(sender string) bool {
	lowered := strings.ToLower(sender)
	for _, needle := range p.trustedSenders {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}

func (p *Pipeline) untrustedCard(msg model.InboundMessage) ParsedUpdate {
	card := p.newCard(msg)
	card.Tags = []string{TagUntrustedSource}
	card.ParseConfidence = untrustedConfidence
	card.RequiresConfirmation = true
	card.Evidence = []string{fmt.Sprintf("untrusted sender %q", msg.From)}
	return ParsedUpdate{Card: card, Template: TemplateUnknown}
}

// splitDigest fans a digest message out into one message per bullet line.
// Synthetic message-id suffixes -1..-N keep per-update idempotency under the
// (source, message_id) unique index.
func splitDigest(msg model.InboundMessage) []model.InboundMessage {
	subject := strings.ToLower(msg.Subject)
	if !strings.Contains(subject, "digest") && !strings.Contains(subject, "summary") {
		return []model.InboundMessage{msg}
	}

	var bullets []string
	for _, line := range strings.Split(msg.BodyText, "\n") {
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			bullets = append(bullets, strings.TrimSpace(m[1]))
		}
	}
	if len(bullets) < 2 {
		return []model.InboundMessage{msg}
	}

	parts := make([]model.InboundMessage, 0, len(bullets))
	for i, bullet := range bullets {
		part := msg
		part.MessageID = fmt.Sprintf("%s-%d", msg.MessageID, i+1)
		part.BodyText = bullet
		parts = append(parts, part)
	}
	return parts
}

func (p *Pipeline) buildUpdate(msg model.InboundMessage) ParsedUpdate {
	template := classifyTemplate(msg.From, msg.Subject)
	card := p.newCard(msg)
	card.Source = refineSource(p.baseSource, msg.From)

	var evidence []string
	if template != TemplateUnknown {
		evidence = append(evidence, "template:"+template)
	}

	card.Tags = extractTags(msg.Subject, msg.BodyText)
	for _, tag := range card.Tags {
		evidence = append(evidence, "tag:"+tag)
	}

	duePhrase := extractDuePhrase(msg.Subject + "\n" + msg.BodyText)
	if duePhrase != "" {
		evidence = append(evidence, "due_phrase:"+duePhrase)
	}

	card.RequiresConfirmation = requiresConfirmation(template, card.Tags, duePhrase)
	card.ParseConfidence = score(template, card.Tags, duePhrase, card.RequiresConfirmation)
	card.Evidence = evidence

	return ParsedUpdate{Card: card, Template: template, DuePhrase: duePhrase}
}

func (p *Pipeline) newCard(msg model.InboundMessage) model.UpdateCard {
	return model.UpdateCard{
		UpdateID:          uuid.NewString(),
		Source:            p.baseSource,
		ProviderMessageID: msg.MessageID,
		ProviderThreadID:  msg.ThreadID,
		ReceivedAtUTC:     msg.ReceivedAtUTC.UTC(),
		Sender:            msg.From,
		Subject:           msg.Subject,
		BodyText:          msg.BodyText,
		Links:             msg.Links,
		ParserMethod:      model.ParserRuleBased,
		ContentHash:       model.ContentHash(msg.BodyText),
	}
}

// classifyTemplate is a deterministic string match over sender and subject.
func classifyTemplate(sender, subject string) string {
	sender = strings.ToLower(sender)
	subject = strings.ToLower(subject)

	switch {
	case strings.Contains(sender, "piazza"):
		switch {
		case strings.Contains(subject, "digest") || strings.Contains(subject, "summary"):
			return TemplatePiazzaDigest
		case strings.Contains(subject, "new post") || strings.Contains(subject, "instructor") ||
			strings.Contains(subject, "followup") || strings.Contains(subject, "follow-up"):
			return TemplatePiazzaRealtime
		default:
			return TemplatePiazzaGeneric
		}
	case strings.Contains(sender, "buffalo.edu") || strings.Contains(sender, "ublearns"):
		switch {
		case strings.Contains(subject, "assignment") || strings.Contains(subject, "homework"):
			return TemplateUBLearnsAssignment
		case strings.Contains(subject, "quiz") || strings.Contains(subject, "exam") ||
			strings.Contains(subject, "test"):
			return TemplateUBLearnsQuiz
		case strings.Contains(subject, "announcement"):
			return TemplateUBLearnsAnnouncement
		default:
			return TemplateUBLearnsGeneric
		}
	default:
		return TemplateUnknown
	}
}

// refineSource narrows a provider source to the mailer-specific one when the
// sender identifies a known system.
func refineSource(base model.Source, sender string) model.Source {
	sender = strings.ToLower(sender)
	switch {
	case strings.Contains(sender, "piazza"):
		return model.SourcePiazzaEmail
	case strings.Contains(sender, "ublearns") || strings.Contains(sender, "buffalo.edu"):
		return model.SourceUBLearnsEmail
	default:
		return base
	}
}

// extractTags returns course and type tags. The course code regex runs over
// lowercased text; matches are uppercased with spaces stripped. The type tag
// follows keyword precedence: assignment, quiz, response_required,
// announcement.
func extractTags(subject, body string) []string {
	text := strings.ToLower(subject + "\n" + body)
	var tags []string

	if code := courseCodePattern.FindString(text); code != "" {
		normalized := strings.ToUpper(strings.ReplaceAll(code, " ", ""))
		tags = append(tags, "course:"+normalized)
	}

	switch {
	case strings.Contains(text, "assignment") || strings.Contains(text, "homework"):
		tags = append(tags, TagAssignment)
	case strings.Contains(text, "quiz") || strings.Contains(text, "exam"):
		tags = append(tags, TagQuiz)
	case strings.Contains(text, "response required") || strings.Contains(text, "reply") ||
		strings.Contains(text, "follow-up") || strings.Contains(text, "respond"):
		tags = append(tags, TagResponseRequired)
	case strings.Contains(text, "announcement"):
		tags = append(tags, TagAnnouncement)
	}
	return tags
}

// extractDuePhrase returns the raw matched due-date phrase, or "".
func extractDuePhrase(text string) string {
	return strings.TrimSpace(duePhrasePattern.FindString(text))
}

// requiresConfirmation gates cards that should not act autonomously: no due
// date and either an assignment tag, a digest template, or no template at all.
func requiresConfirmation(template string, tags []string, duePhrase string) bool {
	if duePhrase != "" {
		return false
	}
	if template == TemplateUnknown || strings.Contains(template, "digest") {
		return true
	}
	for _, tag := range tags {
		if tag == TagAssignment {
			return true
		}
	}
	return false
}

// score computes parse confidence: base 0.50, +0.25 due date, +0.20 course
// tag, +0.10 known template, -0.25 requires confirmation; clamped to [0, 0.99].
func score(template string, tags []string, duePhrase string, needsConfirmation bool) float64 {
	confidence := 0.50
	if duePhrase != "" {
		confidence += 0.25
	}
	for _, tag := range tags {
		if strings.HasPrefix(tag, "course:") {
			confidence += 0.20
			break
		}
	}
	if template != TemplateUnknown {
		confidence += 0.10
	}
	if needsConfirmation {
		confidence -= 0.25
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 0.99 {
		confidence = 0.99
	}
	return confidence
}
