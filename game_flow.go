package main

import (
	"context"
	"fmt"
	"strings"
)

// transitionToNight starts night round with its first sub-phase that has someone to act.
func (c *Controller) transitionToNight(g *GameState, round int) {
	g.Phase = PhaseNight
	g.Round = round
	g.CurrentPlayerIndex = 0
	g.MeetingHeld = false
	g.Votes = nil
	g.VoteOrder = nil
	g.Night = NightState{LastProtected: g.Night.Protected}
	g.NightPhase = g.nextNightPhase(NightNone)

	c.appendSystem(g, fmt.Sprintf("Night %d falls over Whitefire Pass. Doors are barred and lamps put out.", round))
	logger.Infof("Transitioning to night %d (%s)", round, g.NightPhase)
}

// transitionToDay opens the day's discussion, possibly with a random event.
func (c *Controller) transitionToDay(rng Source, g *GameState) {
	g.Phase = PhaseDay
	g.NightPhase = NightNone
	g.CurrentPlayerIndex = 0
	g.MeetingHeld = false

	c.appendSystem(g, fmt.Sprintf("Day %d. The survivors gather by the hearth.", g.Round))
	c.maybeInjectEvent(rng, g)
	logger.Infof("Night %d ended, transitioning to day", g.Round)
}

// maybeInjectEvent draws a random event for 3 to 5 alive travelers with probability eventChance.
func (c *Controller) maybeInjectEvent(rng Source, g *GameState) {
	if c.eventChance <= 0 || rng.Float64() >= c.eventChance {
		return
	}
	alive := g.aliveNames()
	var counts []int
	for _, n := range []int{3, 4, 5} {
		if n <= len(alive) {
			counts = append(counts, n)
		}
	}
	if len(counts) == 0 {
		return
	}
	count := counts[rng.IntN(len(counts))]

	event, ok := c.events.SelectRandomEvent(count, rng)
	if !ok {
		return
	}
	participants := SelectRandomParticipants(alive, count, rng)
	desc, effects, err := FormatEventDescription(event, participants)
	if err != nil {
		logError("maybeInjectEvent", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s. %s", event.Title, desc)
	for _, e := range effects {
		fmt.Fprintf(&b, "\n- %s", e)
	}
	c.appendSystem(g, b.String())
	DebugLog("maybeInjectEvent", "event %s with %v", event.ID, participants)
}

// killPlayer records a death and its consequences. It returns true if the game ended.
func (c *Controller) killPlayer(ctx context.Context, rng Source, g *GameState, name, announcement string) bool {
	p := g.player(name)
	if p == nil || !p.IsAlive {
		return false
	}
	p.IsAlive = false
	g.LastDeath = name
	c.appendMessage(g, SystemSender, MessageDeath, announcement)
	logger.Infof("Player '%s' (%s) died in %s %d", name, p.Role, g.Phase, g.Round)

	for _, t := range ApplyDeath(c.content.Relationships, name, g.Players, rng) {
		mood := "found a fierce resolve"
		if t.State == EmotionVice {
			mood = "turned bitter and cruel"
		}
		c.appendSystem(g, fmt.Sprintf("Mourning %s (%s), %s %s.", t.Dead, t.Type.Label(), t.Character, mood))
	}

	if story := tellStory(ctx, c.storyteller, g.publicHistory()); story != "" {
		c.appendMessage(g, "storyteller", MessageSystem, story)
	}

	if winner, over := checkWinConditions(g); over {
		c.endGame(g, winner)
		return true
	}
	return false
}

// checkWinConditions counts the alive marked (m) against everyone else (o).
// m == 0 hands the game to the lambs; m >= o hands it to the harvest.
func checkWinConditions(g *GameState) (Faction, bool) {
	var marked, others int
	for _, p := range g.Players {
		if !p.IsAlive {
			continue
		}
		if p.Role.IsMarked() {
			marked++
		} else {
			others++
		}
	}
	logger.Infof("Win check: %d marked, %d others alive", marked, others)

	switch {
	case marked == 0:
		return FactionLamb, true
	case marked >= others:
		return FactionHarvest, true
	}
	return "", false
}

func (c *Controller) endGame(g *GameState, winner Faction) {
	g.Phase = PhaseEnd
	g.NightPhase = NightNone
	g.Winner = winner
	g.CurrentPlayerIndex = 0

	msg := "The last of the marked lies dead. The lambs of Whitefire Pass have survived the winter."
	if winner == FactionHarvest {
		msg = "The marked now match the living. The harvest is complete."
	}
	c.appendSystem(g, msg)

	var reveal []string
	for _, p := range g.Players {
		reveal = append(reveal, fmt.Sprintf("%s: %s", p.Name, p.Role.Info().Title))
	}
	c.appendSystem(g, "Roles revealed. "+strings.Join(reveal, "; "))
	logger.Infof("Game over: %s wins", winner)
}
