package steering

import (
	"context"
	"net"
	"testing"
	"time"
)

func runSession(t *testing.T, s *Session) chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
	}
}

func TestSessionParsesFrames(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(client, 0)
	done := runSession(t, s)

	if _, err := server.Write([]byte("cmd:pause;goto:3;sync;cmd:stop;")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitDone(t, done)

	want := []Kind{Pause, GoTo, SyncRuns, Stop}
	for i, k := range want {
		c := s.Queue().Pop()
		if c.Kind != k {
			t.Fatalf("command %d = %s, want %s", i, c.Kind, k)
		}
		if k == GoTo && c.Year != 3 {
			t.Fatalf("goto year = %d, want 3", c.Year)
		}
	}
	if c := s.Queue().Pop(); c.Kind != None {
		t.Fatalf("queue should be drained, got %s", c.Kind)
	}
}

func TestSessionReceiveFailureIsSingleStop(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(client, 0)
	done := runSession(t, s)

	if _, err := server.Write([]byte("cmd:play;")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	server.Close()
	waitDone(t, done)

	if c := s.Queue().Pop(); c.Kind != Play {
		t.Fatalf("first command = %s, want play", c.Kind)
	}
	if c := s.Queue().Pop(); c.Kind != Stop {
		t.Fatalf("second command = %s, want stop", c.Kind)
	}
	if c := s.Queue().Pop(); c.Kind != None {
		t.Fatalf("expected exactly one stop, got trailing %s", c.Kind)
	}
}

func TestSessionCarriesPartialFrames(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(client, 0)
	done := runSession(t, s)

	if _, err := server.Write([]byte("cmd:pa")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if _, err := server.Write([]byte("use;cmd:stop;")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitDone(t, done)

	if c := s.Queue().Pop(); c.Kind != Pause {
		t.Fatalf("first command = %s, want pause", c.Kind)
	}
}

func TestSessionDropsUnknownMessages(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(client, 0)
	done := runSession(t, s)

	if _, err := server.Write([]byte("teapot:418;cmd:stop;")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitDone(t, done)

	if c := s.Queue().Pop(); c.Kind != Stop {
		t.Fatalf("first command = %s, want stop (unknown dropped)", c.Kind)
	}
}

func TestSessionNotify(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(client, 0)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
	}()

	if err := s.Notify("output:infected_2000_12_31|"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	select {
	case msg := <-got:
		if msg != "output:infected_2000_12_31|" {
			t.Errorf("notification = %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification never arrived")
	}
	s.Close()
}
