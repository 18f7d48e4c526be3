package main

import "fmt"

// Role is one of the closed set of roles a player can hold.
type Role string

const (
	RoleMarked   Role = "marked"
	RoleHeretic  Role = "heretic"
	RoleListener Role = "listener"
	RoleCoroner  Role = "coroner"
	RoleTwin     Role = "twin"
	RoleGuard    Role = "guard"
	RoleInnocent Role = "innocent"

	// Legacy werewolf set, still accepted in a role list.
	RoleWerewolf Role = "werewolf"
	RoleVillager Role = "villager"
	RoleSeer     Role = "seer"
	RoleWitch    Role = "witch"
	RoleHunter   Role = "hunter"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{
	RoleMarked, RoleHeretic, RoleListener, RoleCoroner, RoleTwin, RoleGuard, RoleInnocent,
	RoleWerewolf, RoleVillager, RoleSeer, RoleWitch, RoleHunter,
}

// Faction is a winning side.
type Faction string

const (
	FactionHarvest Faction = "harvest" // the marked and those sworn to them
	FactionLamb    Faction = "lamb"
)

// NightPhase is a role-restricted segment of the night.
type NightPhase string

const (
	NightNone          NightPhase = ""
	NightGuard         NightPhase = "guard"
	NightListener      NightPhase = "listener"
	NightCoroner       NightPhase = "coroner"
	NightMarkedDiscuss NightPhase = "marked-discuss"
	NightMarkedVote    NightPhase = "marked-vote"
)

// nightOrder is the order sub-phases run in each night.
var nightOrder = []NightPhase{NightGuard, NightListener, NightCoroner, NightMarkedDiscuss, NightMarkedVote}

// RoleInfo is the display and rules metadata for a role.
type RoleInfo struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Faction     Faction `json:"faction"`
	// Night lists the sub-phases in which this role acts.
	Night []NightPhase `json:"night,omitempty"`
}

// Info maps every role to its metadata. It panics on a value outside the closed set,
// so an unhandled role surfaces in the role tests rather than at the table.
func (r Role) Info() RoleInfo {
	switch r {
	case RoleMarked:
		return RoleInfo{"烙印者", "The Marked", "Knows the other marked. Chooses a victim each night.", FactionHarvest, []NightPhase{NightMarkedDiscuss, NightMarkedVote}}
	case RoleHeretic:
		return RoleInfo{"背誓者", "The Heretic", "Broke the oath. Wins with the marked but does not know them.", FactionHarvest, nil}
	case RoleListener:
		return RoleInfo{"聆心者", "The Listener", "Hears one traveler's heart each night: marked or not.", FactionLamb, []NightPhase{NightListener}}
	case RoleCoroner:
		return RoleInfo{"食灰者", "Ash-Walker", "Reads the ashes of the most recent dead.", FactionLamb, []NightPhase{NightCoroner}}
	case RoleTwin:
		return RoleInfo{"共誓者", "The Twin", "Knows the other twin. Both are innocent.", FactionLamb, nil}
	case RoleGuard:
		return RoleInfo{"设闩者", "Guardian", "Bars one door each night, never the same twice in a row.", FactionLamb, []NightPhase{NightGuard}}
	case RoleInnocent:
		return RoleInfo{"无知者", "The Innocent", "No power but a voice and a vote.", FactionLamb, nil}
	case RoleWerewolf:
		return RoleInfo{"狼人", "Werewolf", "Hunts with the pack at night.", FactionHarvest, []NightPhase{NightMarkedDiscuss, NightMarkedVote}}
	case RoleVillager:
		return RoleInfo{"村民", "Villager", "No special powers.", FactionLamb, nil}
	case RoleSeer:
		return RoleInfo{"预言家", "Seer", "Investigates one player each night.", FactionLamb, []NightPhase{NightListener}}
	case RoleWitch:
		return RoleInfo{"女巫", "Witch", "Plays as a villager in this variant.", FactionLamb, nil}
	case RoleHunter:
		return RoleInfo{"猎人", "Hunter", "Plays as a villager in this variant.", FactionLamb, nil}
	default:
		panic(fmt.Sprintf("unknown role %q", string(r)))
	}
}

// Valid reports whether r is in the closed set.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsMarked reports whether r counts as marked for the win check.
func (r Role) IsMarked() bool {
	return r == RoleMarked || r == RoleWerewolf
}

// ActsIn reports whether r acts during the given night sub-phase.
func (r Role) ActsIn(np NightPhase) bool {
	for _, p := range r.Info().Night {
		if p == np {
			return true
		}
	}
	return false
}
