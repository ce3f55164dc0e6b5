package source

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/addr"
)

const (
	wanVariable  = "wan0_ipaddr"
	realVariable = "wan0_realip_ip"
)

// Runner executes a shell command on the router and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// SSHOptions configures the SSH connection to the router.
type SSHOptions struct {
	Host       string
	Port       int
	Username   string
	Password   string
	KnownHosts string // empty accepts any host key
	Timeout    time.Duration
}

// SSHRunner runs each command over a fresh SSH connection.
type SSHRunner struct {
	address string
	config  *ssh.ClientConfig
	timeout time.Duration
}

// NewSSHRunner validates opts and prepares the client configuration.
func NewSSHRunner(opts SSHOptions) (*SSHRunner, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("source: router host is required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("source: loading known_hosts %s: %w", opts.KnownHosts, err)
		}
		hostKey = cb
	}

	return &SSHRunner{
		address: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		timeout: opts.Timeout,
		config: &ssh.ClientConfig{
			User:            opts.Username,
			Auth:            []ssh.AuthMethod{ssh.Password(opts.Password)},
			HostKeyCallback: hostKey,
			Timeout:         opts.Timeout,
		},
	}, nil
}

// Run dials the router, runs cmd in a session and closes the connection.
// The whole exchange is bounded by the configured timeout and by ctx.
func (r *SSHRunner) Run(ctx context.Context, cmd string) (string, error) {
	d := net.Dialer{Timeout: r.timeout}
	conn, err := d.DialContext(ctx, "tcp", r.address)
	if err != nil {
		return "", fmt.Errorf("source: dialing %s: %w", r.address, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(r.timeout)); err != nil {
		return "", fmt.Errorf("source: setting deadline: %w", err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, r.address, r.config)
	if err != nil {
		return "", fmt.Errorf("source: ssh handshake with %s: %w", r.address, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("source: opening session: %w", err)
	}
	defer sess.Close()

	out, err := sess.Output(cmd)
	if err != nil {
		return "", fmt.Errorf("source: running %q: %w", cmd, err)
	}
	return string(out), nil
}

// RouterSource reads WAN observations from router NVRAM.
type RouterSource struct {
	runner Runner
	log    logr.Logger
}

// NewRouter returns a router source using runner for command execution.
func NewRouter(log logr.Logger, runner Runner) *RouterSource {
	return &RouterSource{runner: runner, log: log}
}

func (r *RouterSource) nvram(ctx context.Context, variable string) netip.Addr {
	fallback := addr.Unspecified(addr.IPv4)

	out, err := r.runner.Run(ctx, "nvram get "+variable)
	if err != nil {
		r.log.Error(err, "unable to read router address, using fallback", "variable", variable, "fallback", fallback)
		return fallback
	}
	a, err := netip.ParseAddr(strings.TrimSpace(out))
	if err != nil {
		r.log.Error(err, "router returned an invalid address, using fallback", "variable", variable, "output", strings.TrimSpace(out), "fallback", fallback)
		return fallback
	}
	return a.Unmap()
}

// WAN returns the address assigned to the router's WAN interface.
func (r *RouterSource) WAN(ctx context.Context) netip.Addr {
	return r.nvram(ctx, wanVariable)
}

// Real returns the public address the router observes for itself.
func (r *RouterSource) Real(ctx context.Context) netip.Addr {
	return r.nvram(ctx, realVariable)
}

// Current returns Real for IPv4. IPv6 is never observed through the router.
func (r *RouterSource) Current(ctx context.Context, family addr.Family) netip.Addr {
	if family == addr.IPv6 {
		r.log.Info("router source does not observe IPv6 addresses", "fallback", addr.Loopback(addr.IPv6))
		return addr.Loopback(addr.IPv6)
	}
	return r.Real(ctx)
}
