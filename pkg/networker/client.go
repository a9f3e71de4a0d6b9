package networker

import (
	"context"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Client issues commands to a running Networker and waits for the replies.
// It is safe for concurrent use.
type Client struct {
	commands chan<- Command
	done     <-chan struct{}
}

// NewClient returns a Client sending on commands. done, if non-nil, is
// closed when the Networker exits.
func NewClient(commands chan<- Command, done <-chan struct{}) *Client {
	return &Client{commands: commands, done: done}
}

// SetConnection replaces the credentials and waits until they are stored.
func (c *Client) SetConnection(ctx context.Context, creds config.ConnectionCredentials) error {
	reply := make(chan struct{}, 1)
	if err := c.send(ctx, SetConnectionCommand{Credentials: creds, Reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// CheckUID asks which achievements a tag unlocks. Any failure, including a
// stopped Networker, yields the Error result.
func (c *Client) CheckUID(ctx context.Context, uid wire.UID) wire.CheckUIDResult {
	reply := make(chan wire.CheckUIDResult, 1)
	if err := c.send(ctx, CheckUIDCommand{UID: uid, Reply: reply}); err != nil {
		return wire.ErrorResult()
	}
	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
	case <-c.done:
	}
	return wire.ErrorResult()
}

// GetAudio fetches the audio for an achievement. The bool is false when no
// audio is available for any reason.
func (c *Client) GetAudio(ctx context.Context, id wire.AchievementID) ([]byte, bool) {
	reply := make(chan AudioResult, 1)
	if err := c.send(ctx, GetAudioCommand{ID: id, Reply: reply}); err != nil {
		return nil, false
	}
	select {
	case r := <-reply:
		return r.Data, r.Present
	case <-ctx.Done():
	case <-c.done:
	}
	return nil, false
}

func (c *Client) send(ctx context.Context, cmd Command) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}
