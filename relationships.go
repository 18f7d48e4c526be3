package main

import (
	"errors"
	"fmt"
)

// RelationshipType tags a relationship edge.
type RelationshipType string

const (
	RelationSibling      RelationshipType = "sibling"
	RelationLover        RelationshipType = "lover"
	RelationCrush        RelationshipType = "crush"
	RelationRival        RelationshipType = "rival"
	RelationDebtor       RelationshipType = "debtor"
	RelationAcquaintance RelationshipType = "acquaintance"
)

// Label is the display label of a relationship type.
func (t RelationshipType) Label() string {
	switch t {
	case RelationSibling:
		return "sibling"
	case RelationLover:
		return "former lover"
	case RelationCrush:
		return "secret crush"
	case RelationRival:
		return "rival"
	case RelationDebtor:
		return "debt"
	case RelationAcquaintance:
		return "old acquaintance"
	default:
		return string(t)
	}
}

// CharacterRelationship is a directed edge: how Character reacts if Target dies.
// Whatever probability VirtueChance+ViceChance leaves over keeps the character normal.
type CharacterRelationship struct {
	Character    string           `json:"character"`
	Target       string           `json:"target"`
	Type         RelationshipType `json:"type"`
	VirtueChance float64          `json:"virtue_chance"`
	ViceChance   float64          `json:"vice_chance"`
}

func (r CharacterRelationship) validate() error {
	if r.Character == "" || r.Target == "" {
		return errors.New("relationship needs a character and a target")
	}
	if r.Character == r.Target {
		return fmt.Errorf("relationship %q -> itself", r.Character)
	}
	if r.VirtueChance < 0 || r.VirtueChance > 1 || r.ViceChance < 0 || r.ViceChance > 1 {
		return fmt.Errorf("relationship %q -> %q: chances must be in [0,1]", r.Character, r.Target)
	}
	if r.VirtueChance+r.ViceChance > 1+1e-9 {
		return fmt.Errorf("relationship %q -> %q: virtue %.2f + vice %.2f exceeds 1",
			r.Character, r.Target, r.VirtueChance, r.ViceChance)
	}
	return nil
}

// RelationshipGraph is the read-only set of relationship edges.
type RelationshipGraph struct {
	edges []CharacterRelationship
}

// NewRelationshipGraph validates every edge before accepting the set.
func NewRelationshipGraph(edges []CharacterRelationship) (*RelationshipGraph, error) {
	for _, e := range edges {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}
	return &RelationshipGraph{edges: append([]CharacterRelationship(nil), edges...)}, nil
}

// For returns the edges leaving the named character.
func (g *RelationshipGraph) For(character string) []CharacterRelationship {
	var out []CharacterRelationship
	for _, e := range g.edges {
		if e.Character == character {
			out = append(out, e)
		}
	}
	return out
}

// TriggeredBy returns the edges whose target is the dead character.
func (g *RelationshipGraph) TriggeredBy(dead string) []CharacterRelationship {
	var out []CharacterRelationship
	for _, e := range g.edges {
		if e.Target == dead {
			out = append(out, e)
		}
	}
	return out
}

// EmotionalTransition records one character leaving the normal state.
type EmotionalTransition struct {
	Character string
	Dead      string
	Type      RelationshipType
	State     EmotionalState
}

// ApplyDeath draws once per edge targeting dead, for characters that are alive and still normal.
// Transitions are one-way: a character already in virtue or vice is skipped without a draw.
func ApplyDeath(graph *RelationshipGraph, dead string, players []Player, rng Source) []EmotionalTransition {
	var out []EmotionalTransition
	for _, edge := range graph.TriggeredBy(dead) {
		idx := -1
		for i := range players {
			if players[i].Name == edge.Character {
				idx = i
				break
			}
		}
		if idx < 0 || !players[idx].IsAlive {
			continue
		}
		if players[idx].EmotionalState != EmotionNormal && players[idx].EmotionalState != "" {
			continue
		}

		u := rng.Float64()
		var next EmotionalState
		switch {
		case u < edge.VirtueChance:
			next = EmotionVirtue
		case u < edge.VirtueChance+edge.ViceChance:
			next = EmotionVice
		default:
			players[idx].EmotionalState = EmotionNormal
			continue
		}

		players[idx].EmotionalState = next
		out = append(out, EmotionalTransition{Character: edge.Character, Dead: dead, Type: edge.Type, State: next})
	}
	return out
}
