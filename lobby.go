package main

import (
	"fmt"
	"strings"
)

// GameConfig is what the observer picks before starting.
type GameConfig struct {
	PlayerCount int    `json:"player_count"`
	Roles       []Role `json:"roles"`
	Credential  string `json:"credential"`
}

// DefaultRoles is the standard fifteen-traveler setup.
var DefaultRoles = []Role{
	RoleMarked, RoleMarked, RoleMarked,
	RoleHeretic,
	RoleListener,
	RoleCoroner,
	RoleTwin, RoleTwin,
	RoleGuard,
	RoleInnocent, RoleInnocent, RoleInnocent, RoleInnocent, RoleInnocent, RoleInnocent,
}

// DefaultGameConfig returns the standard setup with the given credential.
func DefaultGameConfig(credential string) GameConfig {
	return GameConfig{
		PlayerCount: len(DefaultRoles),
		Roles:       append([]Role(nil), DefaultRoles...),
		Credential:  credential,
	}
}

// validate rejects a config before anything is mutated. castSize caps the player count.
func (cfg GameConfig) validate(castSize int) error {
	if cfg.PlayerCount <= 0 {
		return fmt.Errorf("player count %d: %w", cfg.PlayerCount, ErrInvalidConfig)
	}
	if cfg.PlayerCount > castSize {
		return fmt.Errorf("player count %d exceeds cast of %d: %w", cfg.PlayerCount, castSize, ErrInvalidConfig)
	}
	if len(cfg.Roles) != cfg.PlayerCount {
		return fmt.Errorf("role count (%d) != player count (%d): %w", len(cfg.Roles), cfg.PlayerCount, ErrInvalidConfig)
	}
	var marked int
	for _, r := range cfg.Roles {
		if !r.Valid() {
			return fmt.Errorf("unknown role %q: %w", string(r), ErrInvalidConfig)
		}
		if r.IsMarked() {
			marked++
		}
	}
	// The roster must open undecided.
	if others := cfg.PlayerCount - marked; marked == 0 || marked >= others {
		return fmt.Errorf("%d marked against %d others is decided before it starts: %w", marked, others, ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Credential) == "" {
		return ErrInvalidCredential
	}
	return nil
}

// assignRoles pairs personas with a shuffled copy of the role multiset.
func assignRoles(cast []Persona, roles []Role, rng Source, newID func() string) []Player {
	pool := append([]Role(nil), roles...)
	shuffleRoles(pool, rng)

	players := make([]Player, len(cast))
	for i, p := range cast {
		players[i] = Player{
			ID:             newID(),
			Name:           p.Name,
			EnglishName:    p.EnglishName,
			Role:           pool[i],
			IsAlive:        true,
			IsAI:           true,
			EmotionalState: EmotionNormal,
			Personality:    p.Personality,
			Gender:         p.Gender,
			Occupation:     p.Occupation,
			Trait:          p.Trait,
			Height:         p.Height,
			BloodType:      p.BloodType,
		}
	}
	return players
}

// shuffleRoles is a Fisher-Yates shuffle over rng.
func shuffleRoles(roles []Role, rng Source) {
	for i := len(roles) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}
}
