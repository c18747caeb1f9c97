package peer

import (
	"testing"

	"github.com/danmuck/treenet/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		line string
		want Command
		err  error
	}{
		{line: "register", want: Command{Kind: CommandRegister}},
		{line: "  ADVERTISE ", want: Command{Kind: CommandAdvertise}},
		{line: "sendMessage hello tree", want: Command{Kind: CommandSendMessage, Text: "hello tree"}},
		{line: "msg   spaced  out", want: Command{Kind: CommandSendMessage, Text: "spaced  out"}},
		{line: "register ignored", want: Command{Kind: CommandRegister}},
		{line: "exit", want: Command{Kind: CommandQuit}},
		{line: "sendMessage", err: ErrEmptyMessage},
		{line: "sendMessage    ", err: ErrEmptyMessage},
		{line: "dance", err: ErrUnknownCommand},
		{line: "", err: ErrUnknownCommand},
	}
	for _, tc := range cases {
		got, err := ParseCommand(tc.line)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, "line %q", tc.line)
			continue
		}
		require.NoError(t, err, "line %q", tc.line)
		assert.Equal(t, tc.want, got, "line %q", tc.line)
	}
}

func TestCommandKindString(t *testing.T) {
	assert.Equal(t, "sendMessage", CommandSendMessage.String())
	assert.Equal(t, "command(9)", CommandKind(9).String())
}

func TestSubmitValidatesAndBounds(t *testing.T) {
	testlog.Start(t)
	net := newMemNet()
	p, err := New(Config{Self: addrN(1), Root: rootAddr, CommandQueueSize: 2}, net.attach(addrN(1)))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Submit(Command{Kind: CommandKind(42)}), ErrUnknownCommand)
	assert.ErrorIs(t, p.Submit(Command{Kind: CommandSendMessage}), ErrEmptyMessage)

	require.NoError(t, p.Submit(Command{Kind: CommandRegister}))
	require.NoError(t, p.Submit(Command{Kind: CommandAdvertise}))
	assert.ErrorIs(t, p.Submit(Command{Kind: CommandRegister}), ErrCommandQueueFull)

	p.Tick(p.clock.Now())
	assert.NoError(t, p.Submit(Command{Kind: CommandRegister}), "a tick drains the queue")
}

func TestQuitClosesDone(t *testing.T) {
	testlog.Start(t)
	c := newCluster(t)
	a := c.add(addrN(1))

	select {
	case <-a.Done():
		t.Fatal("done before quit")
	default:
	}
	c.submit(addrN(1), "quit", "")
	c.submit(addrN(1), "quit", "")
	c.settle()

	select {
	case <-a.Done():
	default:
		t.Fatal("quit did not close done")
	}
}
