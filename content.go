package main

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed content/*.json
var contentFS embed.FS

// Persona is a cast member the roster is built from.
type Persona struct {
	Name        string `json:"name"`
	EnglishName string `json:"english_name"`
	Personality string `json:"personality"`
	Gender      string `json:"gender"`
	Occupation  string `json:"occupation"`
	Trait       string `json:"trait"`
	Height      string `json:"height"`
	BloodType   string `json:"blood_type"`
}

// Content is the static narrative data the game runs on.
type Content struct {
	Cast          []Persona
	Relationships *RelationshipGraph
	Events        []GameEvent
}

// loadContent parses and validates the embedded content files.
func loadContent() (*Content, error) {
	var cast []Persona
	if err := readContent("content/cast.json", &cast); err != nil {
		return nil, err
	}
	if len(cast) == 0 {
		return nil, fmt.Errorf("content/cast.json: empty cast")
	}
	seen := make(map[string]bool, len(cast))
	for _, p := range cast {
		if p.Name == "" || seen[p.Name] {
			return nil, fmt.Errorf("content/cast.json: missing or duplicate name %q", p.Name)
		}
		seen[p.Name] = true
	}

	var edges []CharacterRelationship
	if err := readContent("content/relationships.json", &edges); err != nil {
		return nil, err
	}
	graph, err := NewRelationshipGraph(edges)
	if err != nil {
		return nil, fmt.Errorf("content/relationships.json: %w", err)
	}

	var events []GameEvent
	if err := readContent("content/events.json", &events); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := ev.validate(); err != nil {
			return nil, fmt.Errorf("content/events.json: %w", err)
		}
	}

	return &Content{Cast: cast, Relationships: graph, Events: events}, nil
}

func readContent(path string, dst any) error {
	data, err := contentFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
