package configs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MatchMethod decides how the matchmaker turns a queue into a match.
type MatchMethod string

// SelectMethod decides how the matchmaker picks a server for a match.
type SelectMethod string

const (
	MatchMethodInstant   MatchMethod = "INSTANT"
	MatchMethodCountdown MatchMethod = "COUNTDOWN"

	SelectMethodPlayerCount SelectMethod = "PLAYER_COUNT"
	SelectMethodAvailable   SelectMethod = "AVAILABLE"
)

// UnmarshalJSON rejects unknown match methods.
func (m *MatchMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("matchMethod: %w", err)
	}
	switch MatchMethod(s) {
	case "", MatchMethodInstant, MatchMethodCountdown:
		*m = MatchMethod(s)
		return nil
	}
	return fmt.Errorf("unknown matchMethod %q", s)
}

// UnmarshalJSON rejects unknown select methods.
func (m *SelectMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("selectMethod: %w", err)
	}
	switch SelectMethod(s) {
	case "", SelectMethodPlayerCount, SelectMethodAvailable:
		*m = SelectMethod(s)
		return nil
	}
	return fmt.Errorf("unknown selectMethod %q", s)
}

// GameModeConfig is the live config of a single game mode.
type GameModeConfig struct {
	ID        string `json:"id"`
	Enabled   bool   `json:"enabled"`
	FleetName string `json:"fleetName"`

	// Priority determines the order for things such as the NPC and item display
	// Lower numbers are higher priority
	Priority int `json:"priority"`

	FriendlyName string `json:"friendlyName"`
	ActivityNoun string `json:"activityNoun"`

	MinPlayers int `json:"minPlayers"`
	MaxPlayers int `json:"maxPlayers"`

	// DisplayItem optional
	DisplayItem *ConfigItem `json:"displayItem"`
	// DisplayNpc optional
	DisplayNpc *ConfigNPC `json:"displayNpc"`

	PartyRestrictions *PartyRestrictions `json:"partyRestrictions"`

	Maps map[string]*ConfigMap `json:"maps"`

	MatchmakerInfo *MatchmakerInfo `json:"matchmakerInfo"`

	// FileName is the file or ConfigMap key the config was loaded from.
	FileName string `json:"-"`
}

type PartyRestrictions struct {
	MinSize int `json:"minSize"`
	// MaxSize optional
	MaxSize *int `json:"maxSize"`
}

type MatchmakerInfo struct {
	MatchMethod  MatchMethod  `json:"matchMethod"`
	SelectMethod SelectMethod `json:"selectMethod"`

	Rate     Duration `json:"rate"`
	Backfill bool     `json:"backfill"`
}

func (c *GameModeConfig) ConfigID() string        { return c.ID }
func (c *GameModeConfig) ConfigPriority() int     { return c.Priority }
func (c *GameModeConfig) SetFileName(name string) { c.FileName = name }

// Normalize replaces null lists with empty ones.
func (c *GameModeConfig) Normalize() {
	c.DisplayItem.normalize()
	c.DisplayNpc.normalize()
	for _, m := range c.Maps {
		if m != nil {
			m.DisplayItem.normalize()
		}
	}
}

// Validate checks the invariants a game mode must hold before it goes live.
func (c *GameModeConfig) Validate() error {
	if c.ID == "" {
		return errors.New("id cannot be empty")
	}
	if c.MinPlayers < 0 {
		return fmt.Errorf("minPlayers cannot be negative (got %d)", c.MinPlayers)
	}
	if c.MaxPlayers > 0 && c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("maxPlayers (%d) cannot be lower than minPlayers (%d)", c.MaxPlayers, c.MinPlayers)
	}
	if pr := c.PartyRestrictions; pr != nil {
		if pr.MinSize < 0 {
			return fmt.Errorf("partyRestrictions.minSize cannot be negative (got %d)", pr.MinSize)
		}
		if pr.MaxSize != nil && *pr.MaxSize < pr.MinSize {
			return fmt.Errorf("partyRestrictions.maxSize (%d) cannot be lower than minSize (%d)", *pr.MaxSize, pr.MinSize)
		}
	}
	return nil
}
