package source

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshRouter is an in-process SSH server answering "nvram get" like an ASUS router.
// The command "sleep" never completes until the test ends.
type sshRouter struct {
	addr   string
	signer ssh.Signer
	nvram  map[string]string
	hang   chan struct{}
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func newSSHRouter(t *testing.T, nvram map[string]string) *sshRouter {
	t.Helper()
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	signer := newSigner(t)
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	r := &sshRouter{addr: ln.Addr().String(), signer: signer, nvram: nvram, hang: make(chan struct{})}
	t.Cleanup(func() {
		close(r.hang)
		ln.Close()
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go r.serve(conn, cfg)
		}
	}()
	return r
}

func (r *sshRouter) serve(conn net.Conn, cfg *ssh.ServerConfig) {
	defer conn.Close()
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go r.session(ch, requests)
	}
}

func (r *sshRouter) session(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		req.Reply(true, nil)

		var status uint32
		switch {
		case payload.Command == "sleep":
			<-r.hang
			return
		case strings.HasPrefix(payload.Command, "nvram get "):
			fmt.Fprintln(ch, r.nvram[strings.TrimPrefix(payload.Command, "nvram get ")])
		default:
			fmt.Fprintf(ch.Stderr(), "sh: %s: not found\n", payload.Command)
			status = 127
		}
		ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

func (r *sshRouter) options(t *testing.T) SSHOptions {
	t.Helper()
	host, port, err := net.SplitHostPort(r.addr)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	return SSHOptions{Host: host, Port: p, Username: "admin", Password: "secret", Timeout: 5 * time.Second}
}

func writeKnownHosts(t *testing.T, address string, key ssh.PublicKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(address)}, key) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSSHRunnerRun(t *testing.T) {
	router := newSSHRouter(t, map[string]string{
		"wan0_ipaddr":    "10.0.0.2",
		"wan0_realip_ip": "203.0.113.7",
	})
	opts := router.options(t)
	opts.KnownHosts = writeKnownHosts(t, router.addr, router.signer.PublicKey())

	r, err := NewSSHRunner(opts)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Run(context.Background(), "nvram get wan0_ipaddr")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "10.0.0.2\n" {
		t.Errorf("unexpected output %q", out)
	}

	src := NewRouter(logr.Discard(), r)
	if got := src.WAN(context.Background()).String(); got != "10.0.0.2" {
		t.Errorf("WAN = %s", got)
	}
	if got := src.Real(context.Background()).String(); got != "203.0.113.7" {
		t.Errorf("Real = %s", got)
	}
}

func TestSSHRunnerAnyHostKey(t *testing.T) {
	router := newSSHRouter(t, map[string]string{"wan0_ipaddr": "10.0.0.2"})
	r, err := NewSSHRunner(router.options(t))
	if err != nil {
		t.Fatal(err)
	}
	if out, err := r.Run(context.Background(), "nvram get wan0_ipaddr"); err != nil || strings.TrimSpace(out) != "10.0.0.2" {
		t.Errorf("Run = %q, %v", out, err)
	}
}

func TestSSHRunnerErrors(t *testing.T) {
	router := newSSHRouter(t, map[string]string{"wan0_ipaddr": "10.0.0.2"})

	tests := map[string]struct {
		mutate func(*SSHOptions)
		cmd    string
	}{
		"unknown host key": {
			mutate: func(o *SSHOptions) { o.KnownHosts = writeKnownHosts(t, router.addr, newSigner(t).PublicKey()) },
			cmd:    "nvram get wan0_ipaddr",
		},
		"wrong password": {
			mutate: func(o *SSHOptions) { o.Password = "guess" },
			cmd:    "nvram get wan0_ipaddr",
		},
		"command fails": {
			mutate: func(o *SSHOptions) {},
			cmd:    "ifconfig",
		},
		"deadline exceeded": {
			mutate: func(o *SSHOptions) { o.Timeout = 300 * time.Millisecond },
			cmd:    "sleep",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			opts := router.options(t)
			tt.mutate(&opts)
			r, err := NewSSHRunner(opts)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := r.Run(context.Background(), tt.cmd); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSSHRunnerContextCancel(t *testing.T) {
	router := newSSHRouter(t, nil)
	opts := router.options(t)
	opts.Timeout = 30 * time.Second
	r, err := NewSSHRunner(opts)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := r.Run(ctx, "sleep"); err == nil {
		t.Fatal("expected error after cancel")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run returned %s after cancel", elapsed)
	}
}
