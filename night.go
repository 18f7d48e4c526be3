package main

import (
	"context"
	"fmt"
	"slices"
)

// nightActors lists the alive players acting in np.
func (g *GameState) nightActors(np NightPhase) []Player {
	var actors []Player
	for _, p := range g.Players {
		if p.IsAlive && p.Role.ActsIn(np) {
			actors = append(actors, p)
		}
	}
	return actors
}

// nextNightPhase returns the first sub-phase after from that has someone to act, or NightNone.
func (g *GameState) nextNightPhase(from NightPhase) NightPhase {
	start := 0
	if from != NightNone {
		start = slices.Index(nightOrder, from) + 1
	}
	for _, np := range nightOrder[start:] {
		if len(g.nightActors(np)) > 0 {
			return np
		}
	}
	return NightNone
}

// nightStep is one unit of night progress: an actor acts, or the night moves on.
func (c *Controller) nightStep(ctx context.Context, rng Source, g *GameState) error {
	actors := g.EligibleActors()
	if g.CurrentPlayerIndex < len(actors) {
		actor := actors[g.CurrentPlayerIndex]
		if err := c.nightAction(ctx, g, actor); err != nil {
			return err
		}
		g.CurrentPlayerIndex++
		return nil
	}

	if next := g.nextNightPhase(g.NightPhase); next != NightNone {
		DebugLog("nightStep", "round %d: %s -> %s", g.Round, g.NightPhase, next)
		g.NightPhase = next
		g.CurrentPlayerIndex = 0
		return nil
	}

	return c.resolveNight(ctx, rng, g)
}

func (c *Controller) nightAction(ctx context.Context, g *GameState, actor Player) error {
	switch g.NightPhase {
	case NightGuard:
		return c.guardProtect(ctx, g, actor)
	case NightListener:
		return c.listenerInvestigate(ctx, g, actor)
	case NightCoroner:
		c.coronerExamine(g, actor)
		return nil
	case NightMarkedDiscuss:
		return c.markedDiscuss(ctx, g, actor)
	case NightMarkedVote:
		return c.markedVote(ctx, g, actor)
	default:
		return fmt.Errorf("night action in sub-phase %q", g.NightPhase)
	}
}

// guardProtect bars one door. Never the guard's own, never last night's.
func (c *Controller) guardProtect(ctx context.Context, g *GameState, guard Player) error {
	var candidates []string
	for _, name := range g.aliveNames() {
		if name != guard.Name && name != g.Night.LastProtected {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		c.appendMessage(g, guard.Name, MessageAction, "Found no door to bar tonight.", guard.Name)
		return nil
	}

	target, err := c.ask(ctx, g, Turn{Kind: TurnProtect, Actor: guard, Candidates: candidates})
	if err != nil {
		return err
	}
	g.Night.Protected = target
	c.appendMessage(g, guard.Name, MessageAction, fmt.Sprintf("Barred the door of %s.", target), guard.Name)
	logger.Infof("Guard '%s' is protecting '%s'", guard.Name, target)
	return nil
}

// listenerInvestigate learns whether one traveler bears the Mark.
func (c *Controller) listenerInvestigate(ctx context.Context, g *GameState, listener Player) error {
	var candidates []string
	for _, name := range g.aliveNames() {
		if name != listener.Name {
			candidates = append(candidates, name)
		}
	}

	target, err := c.ask(ctx, g, Turn{Kind: TurnListen, Actor: listener, Candidates: candidates})
	if err != nil {
		return err
	}
	marked := g.player(target).Role.IsMarked()
	g.Investigations = append(g.Investigations, Investigation{
		Round:    g.Round,
		Listener: listener.Name,
		Target:   target,
		IsMarked: marked,
	})

	verdict := "hears no Mark in the heart of"
	if marked {
		verdict = "hears the Mark beating in the heart of"
	}
	c.appendMessage(g, listener.Name, MessageAction, fmt.Sprintf("%s %s %s.", listener.Name, verdict, target), listener.Name)
	logger.Infof("Listener '%s' investigated '%s': marked=%v", listener.Name, target, marked)
	return nil
}

// coronerExamine reads the most recent body, once. No agent call is needed.
func (c *Controller) coronerExamine(g *GameState, coroner Player) {
	if g.LastDeath == "" || g.LastDeath == g.Examined {
		c.appendMessage(g, coroner.Name, MessageAction, "There are no new ashes to read.", coroner.Name)
		return
	}
	dead := g.player(g.LastDeath)
	result := fmt.Sprintf("The ashes of %s tell of %s.", dead.Name, dead.Role.Info().Title)
	g.Examined = dead.Name
	g.Autopsies = append(g.Autopsies, result)
	c.appendMessage(g, coroner.Name, MessageAction, result, coroner.Name)
}

// markedDiscuss is private speech among the marked.
func (c *Controller) markedDiscuss(ctx context.Context, g *GameState, actor Player) error {
	marked := g.markedNames()
	text, err := c.ask(ctx, g, Turn{Kind: TurnDiscuss, Actor: actor, Allies: without(marked, actor.Name)})
	if err != nil {
		return err
	}
	c.appendMessage(g, actor.Name, MessageSpeech, text, marked...)
	return nil
}

// markedVote records one marked player's choice of victim.
func (c *Controller) markedVote(ctx context.Context, g *GameState, actor Player) error {
	var candidates []string
	for _, p := range g.alivePlayers() {
		if !p.Role.IsMarked() {
			candidates = append(candidates, p.Name)
		}
	}
	marked := g.markedNames()
	if len(candidates) == 0 {
		return nil
	}

	target, err := c.ask(ctx, g, Turn{Kind: TurnKill, Actor: actor, Candidates: candidates, Allies: without(marked, actor.Name)})
	if err != nil {
		return err
	}
	if g.Night.KillVotes == nil {
		g.Night.KillVotes = make(map[string]string)
	}
	g.Night.KillVotes[actor.Name] = target
	g.Night.VoteOrder = append(g.Night.VoteOrder, actor.Name)
	c.appendMessage(g, actor.Name, MessageVote, fmt.Sprintf("%s chooses %s.", actor.Name, target), marked...)
	return nil
}

// resolveNight applies the marked's choice, then moves to day if the game goes on.
func (c *Controller) resolveNight(ctx context.Context, rng Source, g *GameState) error {
	g.NightPhase = NightNone
	g.CurrentPlayerIndex = 0

	victim := plurality(g.Night.KillVotes, g.Night.VoteOrder, true)
	logger.Infof("Night %d resolved: victim=%q protected=%q", g.Round, victim, g.Night.Protected)

	switch {
	case victim == "":
		c.appendSystem(g, "Dawn breaks over a quiet inn. Nobody died in the night.")
	case victim == g.Night.Protected:
		c.appendSystem(g, "Dawn breaks. Claw marks score a barred door, but everyone inside lived to see the morning.")
	default:
		c.appendSystem(g, "Dawn breaks, and the inn wakes to a scream.")
		if c.killPlayer(ctx, rng, g, victim, fmt.Sprintf("%s was found dead in the snow.", victim)) {
			return nil
		}
	}

	c.transitionToDay(rng, g)
	return nil
}

// plurality returns the target with the most votes. voters holds the voting order.
// On a tie, earliestWins picks the tied target voted for first; otherwise nobody is chosen.
func plurality(votes map[string]string, voters []string, earliestWins bool) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, voter := range voters {
		target, ok := votes[voter]
		if !ok {
			continue
		}
		if counts[target] == 0 {
			firstSeen[target] = i
		}
		counts[target]++
	}

	best, bestCount, tied := "", 0, false
	for target, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, tied = target, n, false
		case n == bestCount:
			tied = true
			if firstSeen[target] < firstSeen[best] {
				best = target
			}
		}
	}
	if tied && !earliestWins {
		return ""
	}
	return best
}

func without(names []string, name string) []string {
	var out []string
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
