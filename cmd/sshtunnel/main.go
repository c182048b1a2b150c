// Command sshtunnel is a thin demonstration client for the sshcore
// library: an interactive shell over a raw local terminal, or a
// direct-tcpip forwarder, driven from one connection.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"github.com/jpillora/opts"
	"golang.org/x/term"

	sshcore "github.com/chara-x/sshcore"
)

type config struct {
	Addr     string `opts:"help=host:port of the ssh server"`
	User     string `opts:"help=remote username"`
	Password string `opts:"help=password, if using password authentication"`
	Insecure bool   `opts:"help=skip host key verification (testing only)"`

	Mode string `opts:"help=shell, forward, or local"`

	Listen  string `opts:"help=forward mode: local address to listen on, e.g. 127.0.0.1:8080"`
	Remote  string `opts:"help=forward mode: remote address the server should connect to"`
	Command string `opts:"help=local mode: command to run inside a local pty"`
}

// sshtunnel --addr host:22 --user root --password secret --mode shell
// sshtunnel --addr host:22 --user root --password secret --mode forward --listen 127.0.0.1:8080 --remote 127.0.0.1:80
func main() {
	c := config{Mode: "shell"}
	opts.Parse(&c)

	var err error
	switch c.Mode {
	case "shell":
		err = c.runShell()
	case "forward":
		err = c.runForward()
	case "local":
		err = c.runLocal()
	default:
		err = fmt.Errorf("sshtunnel: unknown mode %q", c.Mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func (c *config) dial() (*sshcore.Session, error) {
	conn, err := net.Dial("tcp", c.Addr)
	if err != nil {
		return nil, err
	}
	cfg := sshcore.DefaultConfig()
	cfg.User = c.User
	cfg.Auth = []sshcore.AuthMethod{sshcore.PasswordMethod{Password: c.Password}}
	if c.Insecure {
		cfg.HostKeyCallback = sshcore.InsecureIgnoreHostKey()
	} else {
		cfg.HostKeyCallback = func(algo string, blob []byte) error {
			return fmt.Errorf("sshtunnel: no known_hosts support; pass --insecure or supply a HostKeyCallback")
		}
	}
	session, err := sshcore.Connect(context.Background(), conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

func (c *config) runShell() error {
	session, err := c.dial()
	if err != nil {
		return err
	}
	defer session.Disconnect(11, "")

	w, h, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		w, h = 80, 24
	}
	ch, err := session.Shell("xterm", uint32(w), uint32(h))
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		state, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		defer term.Restore(int(os.Stdin.Fd()), state)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGWINCH)
		go func() {
			for range sigCh {
				if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
					ch.WindowChange(uint32(w), uint32(h), 0, 0)
				}
			}
		}()
	}

	go io.Copy(ch, os.Stdin)
	_, err = io.Copy(os.Stdout, ch)
	return err
}

func (c *config) runForward() error {
	session, err := c.dial()
	if err != nil {
		return err
	}
	defer session.Disconnect(11, "")

	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Printf("forwarding %s -> %s (via %s)", c.Listen, c.Remote, c.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			defer conn.Close()
			ch, err := session.DialTCP(c.Remote)
			if err != nil {
				log.Printf("direct-tcpip to %s failed: %v", c.Remote, err)
				return
			}
			defer ch.Close()
			go io.Copy(ch, conn)
			io.Copy(conn, ch)
		}()
	}
}

// runLocal exercises creack/pty without a server: it allocates a real
// local pseudo-terminal for c.Command, for manually checking the
// window-resize and raw-mode plumbing that runShell reuses over the
// tunnel.
func (c *config) runLocal() error {
	parts := strings.Fields(c.Command)
	if len(parts) == 0 {
		parts = []string{os.Getenv("SHELL")}
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		state, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		defer term.Restore(int(os.Stdin.Fd()), state)
	}
	if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
		pty.Setsize(f, &pty.Winsize{Rows: uint16(h), Cols: uint16(w)})
	}

	go io.Copy(f, os.Stdin)
	io.Copy(os.Stdout, f)
	return cmd.Wait()
}
