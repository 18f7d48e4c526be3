package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleInfoCoversEveryRole(t *testing.T) {
	for _, role := range AllRoles {
		t.Run(string(role), func(t *testing.T) {
			assert.True(t, role.Valid())
			info := role.Info()
			assert.NotEmpty(t, info.Name)
			assert.NotEmpty(t, info.Title)
			assert.Contains(t, []Faction{FactionHarvest, FactionLamb}, info.Faction)
			for _, np := range info.Night {
				assert.Contains(t, nightOrder, np)
			}
		})
	}
}

func TestRoleInfoPanicsOnUnknownRole(t *testing.T) {
	assert.False(t, Role("doctor").Valid())
	assert.Panics(t, func() { Role("doctor").Info() })
}

func TestRoleNightSubPhases(t *testing.T) {
	cases := map[NightPhase][]Role{
		NightGuard:         {RoleGuard},
		NightListener:      {RoleListener, RoleSeer},
		NightCoroner:       {RoleCoroner},
		NightMarkedDiscuss: {RoleMarked, RoleWerewolf},
		NightMarkedVote:    {RoleMarked, RoleWerewolf},
	}
	for np, want := range cases {
		var got []Role
		for _, role := range AllRoles {
			if role.ActsIn(np) {
				got = append(got, role)
			}
		}
		assert.ElementsMatch(t, want, got, "sub-phase %s", np)
	}
}

func TestHereticIsHarvestButNotMarked(t *testing.T) {
	assert.Equal(t, FactionHarvest, RoleHeretic.Info().Faction)
	assert.False(t, RoleHeretic.IsMarked())
	assert.True(t, RoleMarked.IsMarked())
	assert.True(t, RoleWerewolf.IsMarked())
}
