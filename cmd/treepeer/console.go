package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/treenet/internal/peer"
)

const consoleHelp = `commands:
  register            register with the root
  advertise           ask the root for a tree position
  sendMessage <text>  broadcast text to the tree
  status              print this peer's state
  quit                leave
`

type consolePeer interface {
	Submit(cmd peer.Command) error
	Status() peer.Status
}

// runConsole feeds lines from in into p's command queue until in ends,
// ctx is cancelled, or quit is entered.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, p consolePeer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if quit := handleConsoleLine(line, out, p); quit {
				return nil
			}
		}
	}
}

func handleConsoleLine(line string, out io.Writer, p consolePeer) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false
	case "help", "?":
		fmt.Fprint(out, consoleHelp)
		return false
	case "status":
		raw, err := json.MarshalIndent(p.Status(), "", "  ")
		if err != nil {
			fmt.Fprintf(out, "status: %v\n", err)
			return false
		}
		fmt.Fprintln(out, string(raw))
		return false
	}

	cmd, err := peer.ParseCommand(line)
	if err != nil {
		fmt.Fprintf(out, "%v (type help)\n", err)
		return false
	}
	if err := p.Submit(cmd); err != nil {
		fmt.Fprintf(out, "%s: %v\n", cmd.Kind, err)
		return false
	}
	return cmd.Kind == peer.CommandQuit
}
