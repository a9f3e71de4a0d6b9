// Package interactive provides the interactive console of boopbox-device.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/connection"
	"github.com/boop-box/boopbox-go/pkg/networker"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// commandTimeout bounds each console command.
const commandTimeout = 10 * time.Second

// Console reads commands from the terminal and forwards them to the networker.
type Console struct {
	rl  *readline.Instance
	out io.Writer
}

// New creates a console.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "boop> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Stderr returns a writer that coordinates with the prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done. cancel is called when
// the user exits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, client *networker.Client, status func() connection.Status) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		c.dispatch(ctx, client, status, cmd, args)
	}
}

func (c *Console) dispatch(ctx context.Context, client *networker.Client, status func() connection.Status, cmd string, args []string) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		fmt.Fprintf(c.out, "Status: %s\n", status())
	case "set":
		c.cmdSet(ctx, client, args)
	case "check", "c":
		c.cmdCheck(ctx, client, args)
	case "audio", "a":
		c.cmdAudio(ctx, client, args)
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
boop-box Commands:
  set <host> <port> <user> <secret>  - Replace the server credentials
  check <uid>                        - Check a tag UID (hex, 7 bytes)
  audio <achievement-id> [file]      - Fetch audio (hex, 20 bytes), optionally save it
  status                             - Show the connection status
  help                               - Show this help
  quit                               - Exit`)
}

func (c *Console) cmdSet(ctx context.Context, client *networker.Client, args []string) {
	if len(args) != 4 {
		fmt.Fprintln(c.out, "Usage: set <host> <port> <user> <secret>")
		return
	}
	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid port: %s\n", args[1])
		return
	}
	creds := config.ConnectionCredentials{
		Host:   args[0],
		Port:   uint16(port),
		User:   args[2],
		Secret: args[3],
	}
	if err := creds.Validate(); err != nil {
		fmt.Fprintf(c.out, "Invalid credentials: %v\n", err)
		return
	}
	if err := client.SetConnection(ctx, creds); err != nil {
		fmt.Fprintf(c.out, "Failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Stored %s\n", creds)
}

func (c *Console) cmdCheck(ctx context.Context, client *networker.Client, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: check <uid>")
		return
	}
	uid, err := wire.ParseUID(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return
	}

	start := time.Now()
	res := client.CheckUID(ctx, uid)
	took := time.Since(start).Round(time.Millisecond)

	switch res.Status {
	case wire.CheckUIDOk:
		fmt.Fprintf(c.out, "Ok: %d achievement(s) in %s\n", len(res.Achievements), took)
		for _, id := range res.Achievements {
			fmt.Fprintf(c.out, "  %s\n", id)
		}
	default:
		fmt.Fprintf(c.out, "%s (%s)\n", res.Status, took)
	}
}

func (c *Console) cmdAudio(ctx context.Context, client *networker.Client, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.out, "Usage: audio <achievement-id> [file]")
		return
	}
	id, err := wire.ParseAchievementID(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return
	}

	data, ok := client.GetAudio(ctx, id)
	if !ok {
		fmt.Fprintln(c.out, "No audio")
		return
	}
	fmt.Fprintf(c.out, "Audio: %d bytes\n", len(data))

	if len(args) == 2 {
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			fmt.Fprintf(c.out, "Failed to write %s: %v\n", args[1], err)
			return
		}
		fmt.Fprintf(c.out, "Saved to %s\n", args[1])
	}
}
