package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the chat commands.
type Kind string

const (
	KindToday Kind = "today"
	KindAdd   Kind = "add"
	KindMove  Kind = "move"
	KindUndo  Kind = "undo"
	KindHelp  Kind = "help"
)

// Command is one parsed chat command.
type Command struct {
	Kind            Kind
	Title           string
	DurationMinutes int
	Day             string // "today" (default) or "tomorrow"
	Hour            int
	Minute          int
	HasTime         bool
}

var (
	addPattern = regexp.MustCompile(
		`(?i)^add\s+"([^"]+)"\s+(\d+)m(?:\s+(today|tomorrow))?(?:\s+(\d{1,2})(?::(\d{2}))?(am|pm)?)?\s*$`)
	movePattern = regexp.MustCompile(
		`(?i)^move\s+"([^"]+)"(?:\s+to)?(?:\s+(today|tomorrow))?\s+(\d{1,2})(?::(\d{2}))?(am|pm)?(?:\s+(\d+)m)?\s*$`)
)

// defaultStartHour is where an /add without a time lands.
const defaultStartHour = 19

// Parse reads one chat line. The leading slash is optional.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "/"))
	lower := strings.ToLower(text)

	switch {
	case lower == "today":
		return Command{Kind: KindToday}, nil
	case lower == "undo":
		return Command{Kind: KindUndo}, nil
	case lower == "help" || lower == "":
		return Command{Kind: KindHelp}, nil
	}

	if m := addPattern.FindStringSubmatch(text); m != nil {
		minutes, err := strconv.Atoi(m[2])
		if err != nil || minutes <= 0 || minutes > 24*60 {
			return Command{}, fmt.Errorf("duration out of range: %sm", m[2])
		}
		cmd := Command{
			Kind:            KindAdd,
			Title:           strings.TrimSpace(m[1]),
			DurationMinutes: minutes,
			Day:             dayOrDefault(m[3]),
			Hour:            defaultStartHour,
		}
		if m[4] != "" {
			hour, minute, err := clockFrom(m[4], m[5], m[6])
			if err != nil {
				return Command{}, err
			}
			cmd.Hour, cmd.Minute, cmd.HasTime = hour, minute, true
		}
		return cmd, nil
	}

	if m := movePattern.FindStringSubmatch(text); m != nil {
		hour, minute, err := clockFrom(m[3], m[4], m[5])
		if err != nil {
			return Command{}, err
		}
		cmd := Command{
			Kind:    KindMove,
			Title:   strings.TrimSpace(m[1]),
			Day:     dayOrDefault(m[2]),
			Hour:    hour,
			Minute:  minute,
			HasTime: true,
		}
		// Trailing duration resizes the block; absent, it keeps its length.
		if m[6] != "" {
			minutes, err := strconv.Atoi(m[6])
			if err != nil || minutes <= 0 || minutes > 24*60 {
				return Command{}, fmt.Errorf("duration out of range: %sm", m[6])
			}
			cmd.DurationMinutes = minutes
		}
		return cmd, nil
	}

	return Command{}, fmt.Errorf("unrecognized command %q; try /help", text)
}

func dayOrDefault(day string) string {
	day = strings.ToLower(day)
	if day == "" {
		return "today"
	}
	return day
}

func clockFrom(hourStr, minuteStr, meridiem string) (int, int, error) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour %q", hourStr)
	}
	minute := 0
	if minuteStr != "" {
		if minute, err = strconv.Atoi(minuteStr); err != nil || minute > 59 {
			return 0, 0, fmt.Errorf("bad minute %q", minuteStr)
		}
	}
	switch strings.ToLower(meridiem) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 {
		return 0, 0, fmt.Errorf("bad hour %q", hourStr)
	}
	return hour, minute, nil
}

// StartTime resolves the command's day and clock against now.
func (c Command) StartTime(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if c.Day == "tomorrow" {
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute)
}

// HelpText documents the grammar, shown for /help and parse failures.
const HelpText = `Commands:
  /today                                  show today's plan
  /add "<title>" <N>m [today|tomorrow] [time]   add a block (default 7pm today)
  /move "<title>" [today|tomorrow] <time>       move a block
  /undo                                   undo the last add or move
  /help                                   this message`
