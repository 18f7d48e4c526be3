package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EventType is the mood of a random event.
type EventType string

const (
	EventPositive EventType = "positive"
	EventNegative EventType = "negative"
	EventNeutral  EventType = "neutral"
)

// GameEvent is a flavor event involving a fixed number of participants.
// Description and Effects reference participants positionally as {0}, {1}, ...
type GameEvent struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ParticipantCount int       `json:"participant_count"`
	Type             EventType `json:"type"`
	Effects          []string  `json:"effects"`
}

var placeholderRe = regexp.MustCompile(`\{(\d+)\}`)

var errParticipantCount = errors.New("participant count does not match event")

func (e GameEvent) validate() error {
	if e.ID == "" {
		return errors.New("event without id")
	}
	if e.ParticipantCount < 3 || e.ParticipantCount > 5 {
		return fmt.Errorf("event %s: participant count %d outside 3..5", e.ID, e.ParticipantCount)
	}
	switch e.Type {
	case EventPositive, EventNegative, EventNeutral:
	default:
		return fmt.Errorf("event %s: unknown type %q", e.ID, e.Type)
	}
	for _, text := range append([]string{e.Description}, e.Effects...) {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			i, _ := strconv.Atoi(m[1])
			if i >= e.ParticipantCount {
				return fmt.Errorf("event %s: placeholder {%d} with %d participants", e.ID, i, e.ParticipantCount)
			}
		}
	}
	return nil
}

// EventTable is the set of random events the dawn draw picks from.
type EventTable struct {
	events []GameEvent
}

func NewEventTable(events []GameEvent) *EventTable {
	return &EventTable{events: events}
}

// SelectRandomEvent picks uniformly among events needing exactly count participants.
func (t *EventTable) SelectRandomEvent(count int, rng Source) (GameEvent, bool) {
	var matching []GameEvent
	for _, e := range t.events {
		if e.ParticipantCount == count {
			matching = append(matching, e)
		}
	}
	if len(matching) == 0 {
		return GameEvent{}, false
	}
	return matching[rng.IntN(len(matching))], true
}

// SelectRandomParticipants shuffles a copy of names and takes the first count.
// Returns nil when there are too few names.
func SelectRandomParticipants(names []string, count int, rng Source) []string {
	if count <= 0 || len(names) < count {
		return nil
	}
	pool := append([]string(nil), names...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:count]
}

// FormatEventDescription substitutes participants into the description and effects.
func FormatEventDescription(event GameEvent, participants []string) (string, []string, error) {
	if len(participants) != event.ParticipantCount {
		return "", nil, fmt.Errorf("event %s wants %d, got %d: %w",
			event.ID, event.ParticipantCount, len(participants), errParticipantCount)
	}
	replace := func(text string) string {
		return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
			i, err := strconv.Atoi(strings.Trim(m, "{}"))
			if err != nil || i >= len(participants) {
				return m
			}
			return participants[i]
		})
	}
	effects := make([]string, len(event.Effects))
	for i, e := range event.Effects {
		effects[i] = replace(e)
	}
	return replace(event.Description), effects, nil
}
