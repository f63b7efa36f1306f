// Package console implements the operator side of the steering protocol:
// a terminal UI that listens for the simulation's control connection and
// turns keypresses into wire commands.
package console

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// connMsg carries a newly accepted simulation connection.
type connMsg struct{ conn net.Conn }

// noteMsg carries one notification received from the simulation.
type noteMsg struct{ line string }

// disconnectMsg reports that the simulation hung up.
type disconnectMsg struct{}

// errMsg reports a listener failure.
type errMsg struct{ err error }

// Run listens on addr and drives the console UI until the operator quits.
// The simulation dials in; one connection is served at a time.
func Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console listen: %w", err)
	}
	defer ln.Close()

	p := tea.NewProgram(newModel(addr), tea.WithAltScreen())
	go acceptLoop(ln, p)
	_, err = p.Run()
	return err
}

func acceptLoop(ln net.Listener, p teaProgram) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			p.Send(errMsg{err: err})
			return
		}
		p.Send(connMsg{conn: conn})
		readLoop(conn, p)
		p.Send(disconnectMsg{})
	}
}

// readLoop forwards notifications to the UI. Messages from the simulation
// are '|' terminated except the final info line, which is flushed as soon
// as it parses.
func readLoop(conn net.Conn, p teaProgram) {
	buf := make([]byte, 4096)
	carry := ""
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if carry != "" {
				p.Send(noteMsg{line: carry})
			}
			return
		}
		carry += string(buf[:n])
		parts := strings.Split(carry, "|")
		carry = parts[len(parts)-1]
		for _, msg := range parts[:len(parts)-1] {
			if msg != "" {
				p.Send(noteMsg{line: msg})
			}
		}
		if strings.HasPrefix(carry, "info:") {
			p.Send(noteMsg{line: carry})
			carry = ""
		}
	}
}

// sendFrame writes one wire message. Frames are ';' terminated.
func sendFrame(w io.Writer, msg string) error {
	if w == nil {
		return fmt.Errorf("simulation not connected")
	}
	_, err := io.WriteString(w, msg+";")
	return err
}

func playFrame() string  { return "cmd:play" }
func pauseFrame() string { return "cmd:pause" }
func stepfFrame() string { return "cmd:stepf" }
func stepbFrame() string { return "cmd:stepb" }
func stopFrame() string  { return "cmd:stop" }
func syncFrame() string  { return "sync" }

func gotoFrame(year int) string { return "goto:" + strconv.Itoa(year) }

func nameFrame(basename string) string { return "name:" + basename }

func loadFrame(year int, name string) string {
	return "load:" + strconv.Itoa(year) + ":" + name
}
