package peer

import (
	"fmt"
	"strings"

	"github.com/danmuck/treenet/internal/protocol"
)

type CommandKind int

const (
	CommandRegister CommandKind = iota + 1
	CommandAdvertise
	CommandSendMessage
	CommandQuit
)

func (k CommandKind) String() string {
	switch k {
	case CommandRegister:
		return "register"
	case CommandAdvertise:
		return "advertise"
	case CommandSendMessage:
		return "sendMessage"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is one parsed, validated user command.
type Command struct {
	Kind CommandKind
	Text string
}

// ParseCommandKind resolves a command name, ignoring case.
func ParseCommandKind(name string) (CommandKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "register":
		return CommandRegister, nil
	case "advertise":
		return CommandAdvertise, nil
	case "sendmessage", "send", "msg":
		return CommandSendMessage, nil
	case "quit", "exit":
		return CommandQuit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// NewCommand validates a command built from separate name and text fields.
func NewCommand(name, text string) (Command, error) {
	kind, err := ParseCommandKind(name)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: kind}
	if kind == CommandSendMessage {
		if strings.TrimSpace(text) == "" {
			return Command{}, ErrEmptyMessage
		}
		cmd.Text = text
	}
	return cmd, nil
}

// ParseCommand parses one console line, e.g. "sendMessage hello tree".
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	name, text, _ := strings.Cut(line, " ")
	return NewCommand(name, strings.TrimSpace(text))
}

// Submit queues cmd for the next engine tick.
func (p *Peer) Submit(cmd Command) error {
	if cmd.Kind < CommandRegister || cmd.Kind > CommandQuit {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind)
	}
	if cmd.Kind == CommandSendMessage && strings.TrimSpace(cmd.Text) == "" {
		return ErrEmptyMessage
	}
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	if len(p.commands) >= p.cfg.CommandQueueSize {
		return ErrCommandQueueFull
	}
	p.commands = append(p.commands, cmd)
	return nil
}

func (p *Peer) takeCommands() []Command {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()
	out := p.commands
	p.commands = nil
	return out
}

// execLocked runs one queued command. Caller holds p.mu.
func (p *Peer) execLocked(cmd Command) {
	switch cmd.Kind {
	case CommandRegister:
		if p.isRoot {
			p.log.Info().Msg("root ignores register command")
			return
		}
		p.openControlLocked()
		p.sendLocked(p.cfg.Root, protocol.RegisterRequest{Address: p.cfg.Self})
	case CommandAdvertise:
		if p.isRoot {
			p.log.Info().Msg("root ignores advertise command")
			return
		}
		// only a failed heartbeat moves an attached peer
		if p.st.reunionActive && !p.st.parent.IsZero() {
			p.log.Info().Str("parent", p.st.parent.String()).Msg("already attached, advertise ignored")
			return
		}
		p.openControlLocked()
		p.sendLocked(p.cfg.Root, protocol.AdvertiseRequest{})
	case CommandSendMessage:
		p.sendBroadcastLocked(cmd.Text)
	case CommandQuit:
		p.quitOnce.Do(func() { close(p.quit) })
	}
}
