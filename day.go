package main

import (
	"context"
	"fmt"
)

// dayStep lets the next alive player speak, then opens the vote.
func (c *Controller) dayStep(ctx context.Context, g *GameState) error {
	actors := g.EligibleActors()
	if g.CurrentPlayerIndex < len(actors) {
		speaker := actors[g.CurrentPlayerIndex]
		text, err := c.ask(ctx, g, Turn{Kind: TurnSpeech, Actor: speaker})
		if err != nil {
			return err
		}
		c.appendMessage(g, speaker.Name, MessageSpeech, text)
		g.CurrentPlayerIndex++
		return nil
	}

	g.Phase = PhaseVoting
	g.CurrentPlayerIndex = 0
	g.Votes = nil
	g.VoteOrder = nil
	c.appendSystem(g, "The talking is done. Each traveler must now name one to sacrifice to the snow.")
	logger.Infof("Day %d: discussion over, voting begins", g.Round)
	return nil
}

// votingStep takes the next ballot, then resolves the vote.
func (c *Controller) votingStep(ctx context.Context, rng Source, g *GameState) error {
	actors := g.EligibleActors()
	if g.CurrentPlayerIndex < len(actors) {
		voter := actors[g.CurrentPlayerIndex]
		candidates := without(g.aliveNames(), voter.Name)
		if len(candidates) == 0 {
			c.appendSystem(g, fmt.Sprintf("%s has nobody left to vote for.", voter.Name))
			g.CurrentPlayerIndex++
			return nil
		}
		target, err := c.ask(ctx, g, Turn{Kind: TurnVote, Actor: voter, Candidates: candidates})
		if err != nil {
			return err
		}
		if g.Votes == nil {
			g.Votes = make(map[string]string)
		}
		g.Votes[voter.Name] = target
		g.VoteOrder = append(g.VoteOrder, voter.Name)
		c.appendMessage(g, voter.Name, MessageVote, fmt.Sprintf("%s votes for %s.", voter.Name, target))
		g.CurrentPlayerIndex++
		return nil
	}

	c.resolveDayVotes(ctx, rng, g)
	return nil
}

// resolveDayVotes sacrifices the plurality choice. A tie spares everyone.
func (c *Controller) resolveDayVotes(ctx context.Context, rng Source, g *GameState) {
	victim := plurality(g.Votes, g.VoteOrder, false)
	logger.Infof("Day %d vote resolved: victim=%q (%d ballots)", g.Round, victim, len(g.Votes))

	if victim == "" {
		c.appendSystem(g, "The vote is split. Nobody is sacrificed today.")
	} else {
		role := g.player(victim).Role.Info()
		if c.killPlayer(ctx, rng, g, victim, fmt.Sprintf("%s is led out into the storm. They were %s.", victim, role.Title)) {
			return
		}
	}

	c.transitionToNight(g, g.Round+1)
}

// ============================================================================
// Secret meetings
// ============================================================================

// HoldSecretMeeting lets two alive travelers speak privately.
// Allowed at the start of a day, or at night before anyone has acted. The actor pointer does not move.
func (c *Controller) HoldSecretMeeting(ctx context.Context, s *Session, a, b string) error {
	working, gen, credential, err := s.begin(false)
	if err != nil {
		return err
	}
	c.changed(s)

	meetErr := c.secretMeeting(withCredential(ctx, credential), working, a, b)
	if meetErr != nil {
		logError("HoldSecretMeeting", meetErr)
	}
	s.finish(working, gen, meetErr, false)
	c.changed(s)
	return meetErr
}

func (c *Controller) secretMeeting(ctx context.Context, g *GameState, a, b string) error {
	if a == b {
		return fmt.Errorf("%s cannot meet themselves: %w", a, ErrInvalidMeeting)
	}
	pa, pb := g.player(a), g.player(b)
	if pa == nil || pb == nil || !pa.IsAlive || !pb.IsAlive {
		return fmt.Errorf("%s and %s must both be alive: %w", a, b, ErrInvalidMeeting)
	}
	if g.MeetingHeld || g.CurrentPlayerIndex != 0 {
		return fmt.Errorf("phase already under way: %w", ErrInvalidMeeting)
	}
	switch g.Phase {
	case PhaseDay:
	case PhaseNight:
		if g.NightPhase != g.nextNightPhase(NightNone) {
			return fmt.Errorf("night already under way: %w", ErrInvalidMeeting)
		}
	default:
		return fmt.Errorf("no meetings during %s: %w", g.Phase, ErrInvalidMeeting)
	}

	pair := []string{a, b}
	c.appendMessage(g, SystemSender, MessageSystem, fmt.Sprintf("%s and %s slip away to talk alone.", a, b), pair...)
	for _, speaker := range []*Player{pa, pb} {
		partner := b
		if speaker.Name == b {
			partner = a
		}
		text, err := c.ask(ctx, g, Turn{Kind: TurnMeeting, Actor: *speaker, Partner: partner})
		if err != nil {
			return err
		}
		c.appendMessage(g, speaker.Name, MessageSpeech, text, pair...)
	}
	g.MeetingHeld = true
	logger.Infof("Secret meeting: %s and %s", a, b)
	return nil
}
