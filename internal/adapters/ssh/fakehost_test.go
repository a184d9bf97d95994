package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	gssh "golang.org/x/crypto/ssh"
)

// fakeHost is an in-process SSH server that records every exec request and
// answers with a scripted exit status.
type fakeHost struct {
	addr     string
	user     string
	password string

	// failOn makes the first command containing this substring exit with failCode.
	failOn   string
	failCode int

	mu          sync.Mutex
	executed    []string
	withPTY     []bool
	connections int
	closed      int
}

func startFakeHost(t *testing.T, user, password string) *fakeHost {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := gssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	h := &fakeHost{user: user, password: password, failCode: 1}
	config := &gssh.ServerConfig{
		PasswordCallback: func(c gssh.ConnMetadata, pass []byte) (*gssh.Permissions, error) {
			if c.User() == h.user && string(pass) == h.password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	h.addr = ln.Addr().String()

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go h.serveConn(nc, config)
		}
	}()

	return h
}

func (h *fakeHost) hostPort() (string, string) {
	host, port, _ := net.SplitHostPort(h.addr)
	return host, port
}

func (h *fakeHost) serveConn(nc net.Conn, config *gssh.ServerConfig) {
	sconn, chans, reqs, err := gssh.NewServerConn(nc, config)
	if err != nil {
		_ = nc.Close()
		return
	}
	h.mu.Lock()
	h.connections++
	h.mu.Unlock()

	go gssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(gssh.UnknownChannelType, "only sessions")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go h.serveSession(ch, chReqs)
	}

	_ = sconn.Close()
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
}

func (h *fakeHost) serveSession(ch gssh.Channel, reqs <-chan *gssh.Request) {
	pty := false
	for req := range reqs {
		switch req.Type {
		case "pty-req":
			pty = true
			_ = req.Reply(true, nil)
		case "exec":
			var payload struct{ Command string }
			if err := gssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			code := h.record(payload.Command, pty)
			_, _ = io.WriteString(ch, "ran: "+payload.Command)
			if code != 0 {
				_, _ = io.WriteString(ch.Stderr(), "boom")
			}
			_, _ = ch.SendRequest("exit-status", false, gssh.Marshal(struct{ Status uint32 }{uint32(code)}))
			_ = ch.Close()
			go gssh.DiscardRequests(reqs)
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (h *fakeHost) failWith(substr string, code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failOn = substr
	h.failCode = code
}

func (h *fakeHost) record(command string, pty bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executed = append(h.executed, command)
	h.withPTY = append(h.withPTY, pty)
	if h.failOn != "" && strings.Contains(command, h.failOn) {
		return h.failCode
	}
	return 0
}

func (h *fakeHost) snapshot() (executed []string, withPTY []bool, connections, closed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.executed...), append([]bool(nil), h.withPTY...), h.connections, h.closed
}
