package networker

import (
	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Command is a request handled by the Networker loop. Reply channels must
// have capacity for one value; a reply that cannot be delivered is dropped.
type Command interface {
	command()
}

// SetConnectionCommand replaces the server credentials. Reply receives one
// value after the configuration store acknowledged the write. Reply may be nil.
type SetConnectionCommand struct {
	Credentials config.ConnectionCredentials
	Reply       chan<- struct{}
}

// CheckUIDCommand asks which achievements a tag unlocks.
type CheckUIDCommand struct {
	UID   wire.UID
	Reply chan<- wire.CheckUIDResult
}

// GetAudioCommand fetches the audio for an achievement.
type GetAudioCommand struct {
	ID    wire.AchievementID
	Reply chan<- AudioResult
}

// AudioResult answers a GetAudioCommand. Present is false when the server
// has no audio for the ID, when there is no session, or when the exchange
// failed.
type AudioResult struct {
	Data    []byte
	Present bool
}

func (SetConnectionCommand) command() {}
func (CheckUIDCommand) command()      {}
func (GetAudioCommand) command()      {}
