package liveconfig

// UpdateType is the kind of change a ConfigUpdate describes.
type UpdateType uint8

const (
	UpdateTypeCreate UpdateType = iota
	UpdateTypeModify
	UpdateTypeDelete
)

var updateTypeNames = map[UpdateType]string{
	UpdateTypeCreate: "create",
	UpdateTypeModify: "modify",
	UpdateTypeDelete: "delete",
}

func (t UpdateType) String() string {
	if name, ok := updateTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ConfigUpdate is delivered to listeners whenever a config changes.
type ConfigUpdate[T any] struct {
	Type UpdateType
	// FileName is the file or ConfigMap key the config came from.
	FileName string
	// Config is the new config, or the removed one for deletes.
	Config T
	// Previous is the config that was replaced by a modify. It is the zero value otherwise.
	Previous T
}
