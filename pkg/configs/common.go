// Package configs contains the live config data model shared by every config kind.
package configs

// Config is implemented by every config kind a collection can hold.
type Config interface {
	// ConfigID returns the unique id of the config.
	ConfigID() string
	// ConfigPriority orders configs for display. Lower numbers are higher priority.
	ConfigPriority() int
	// SetFileName records the file (or ConfigMap key) the config was read from.
	SetFileName(name string)
}

// ConfigItem is an inventory item used to display a game mode or map.
type ConfigItem struct {
	Material string `json:"material"`
	Slot     int    `json:"slot"`

	Name string   `json:"name"`
	Lore []string `json:"lore"`
}

// ConfigNPC is an NPC used to display a game mode in the lobby.
type ConfigNPC struct {
	EntityType string     `json:"entityType"`
	Titles     []string   `json:"titles"`
	Skin       ConfigSkin `json:"skin"`
}

// ConfigSkin is a signed player skin.
type ConfigSkin struct {
	Texture   string `json:"texture"`
	Signature string `json:"signature"`
}

// ConfigMap is a playable map of a game mode. Not to be confused with a Kubernetes ConfigMap.
type ConfigMap struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`

	FriendlyName string `json:"friendlyName"`
	Priority     int    `json:"priority"`

	// DisplayItem optional
	DisplayItem *ConfigItem `json:"displayItem"`
}

func (i *ConfigItem) normalize() {
	if i != nil && i.Lore == nil {
		i.Lore = []string{}
	}
}

func (n *ConfigNPC) normalize() {
	if n != nil && n.Titles == nil {
		n.Titles = []string{}
	}
}
