package console

import (
	"net"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func press(t *testing.T, m model, key string) model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(model)
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(model)
}

func connected(m model) (model, *strings.Builder) {
	var sb strings.Builder
	m.conn = &sb
	return m, &sb
}

func TestKeysSendWireFrames(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"p", "cmd:play;"},
		{" ", "cmd:pause;"},
		{"f", "cmd:stepf;"},
		{"b", "cmd:stepb;"},
		{"s", "cmd:stop;"},
		{"y", "sync;"},
	}
	for _, tt := range tests {
		m, sb := connected(newModel(":0"))
		m = press(t, m, tt.key)
		if sb.String() != tt.want {
			t.Errorf("key %q sent %q, want %q", tt.key, sb.String(), tt.want)
		}
	}
}

func TestGotoDialogSendsFrame(t *testing.T) {
	m, sb := connected(newModel(":0"))
	m = press(t, m, "g")
	if m.mode != inputGoto {
		t.Fatalf("mode = %v, want goto dialog", m.mode)
	}
	m = typeText(t, m, "3")
	m = press(t, m, "enter")
	if sb.String() != "goto:3;" {
		t.Errorf("sent %q, want goto:3;", sb.String())
	}
	if m.mode != inputNone {
		t.Error("dialog should close after submit")
	}
}

func TestLoadDialogSendsFrame(t *testing.T) {
	m, sb := connected(newModel(":0"))
	m = press(t, m, "l")
	m = typeText(t, m, "2020, treat_2020")
	m = press(t, m, "enter")
	if sb.String() != "load:2020:treat_2020;" {
		t.Errorf("sent %q", sb.String())
	}
}

func TestNameDialogSendsFrame(t *testing.T) {
	m, sb := connected(newModel(":0"))
	m = press(t, m, "n")
	m = typeText(t, m, "scenario_b")
	m = press(t, m, "enter")
	if sb.String() != "name:scenario_b;" {
		t.Errorf("sent %q", sb.String())
	}
}

func TestDialogEscCancels(t *testing.T) {
	m, sb := connected(newModel(":0"))
	m = press(t, m, "g")
	m = press(t, m, "esc")
	if m.mode != inputNone {
		t.Error("esc should close the dialog")
	}
	if sb.String() != "" {
		t.Errorf("nothing should be sent, got %q", sb.String())
	}
}

func TestSendWithoutConnectionSetsError(t *testing.T) {
	m := newModel(":0")
	m = press(t, m, "p")
	if m.errText == "" {
		t.Error("expected error when not connected")
	}
}

func TestNotificationsLogged(t *testing.T) {
	m := newModel(":0")
	next, _ := m.Update(noteMsg{line: "output:inf_2020_12_31"})
	m = next.(model)
	if len(m.logs) != 1 || !strings.Contains(m.logs[0], "output:inf_2020_12_31") {
		t.Errorf("logs = %v", m.logs)
	}
	next, _ = m.Update(noteMsg{line: "info:last:inf_2022_12_31"})
	m = next.(model)
	if m.lastInfo != "inf_2022_12_31" {
		t.Errorf("lastInfo = %q", m.lastInfo)
	}
}

type recordingProgram struct {
	msgs chan tea.Msg
}

func (r *recordingProgram) Send(msg tea.Msg) { r.msgs <- msg }

func (r *recordingProgram) next(t *testing.T) tea.Msg {
	t.Helper()
	select {
	case m := <-r.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestReadLoopSplitsNotifications(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := &recordingProgram{msgs: make(chan tea.Msg, 16)}
	go readLoop(server, p)

	if _, err := client.Write([]byte("output:a|output:b|")); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, want := range []string{"output:a", "output:b"} {
		msg, ok := p.next(t).(noteMsg)
		if !ok || msg.line != want {
			t.Fatalf("got %v, want noteMsg %q", msg, want)
		}
	}

	// final info line has no terminator but is flushed immediately
	if _, err := client.Write([]byte("info:last:inf_2022_12_31")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg, ok := p.next(t).(noteMsg)
	if !ok || msg.line != "info:last:inf_2022_12_31" {
		t.Fatalf("got %v, want info note", msg)
	}
}
