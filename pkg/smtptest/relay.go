// Package smtptest runs a minimal in-process SMTP relay for tests.
//
// Recipients starting with "bad@" are refused with 550 and recipients
// starting with "busy@" with 451; everyone else is accepted.
package smtptest

import (
	"net"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
)

type Relay struct {
	Host string
	Port int

	ln        net.Listener
	authFail  bool
	delivered atomic.Int32
}

type Option func(*Relay)

// WithAuthFailure answers every AUTH with 535.
func WithAuthFailure() Option {
	return func(r *Relay) { r.authFail = true }
}

// Start listens on a loopback port until the test ends.
func Start(t testing.TB, opts ...Option) *Relay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("smtptest: listen: %v", err)
	}
	r := &Relay{
		Host: "127.0.0.1",
		Port: ln.Addr().(*net.TCPAddr).Port,
		ln:   ln,
	}
	for _, opt := range opts {
		opt(r)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go r.serve()
	return r
}

// Delivered is the number of messages accepted after DATA.
func (r *Relay) Delivered() int {
	return int(r.delivered.Load())
}

func (r *Relay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *Relay) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	reply := func(lines ...string) {
		for _, l := range lines {
			_ = tp.PrintfLine("%s", l)
		}
	}

	reply("220 relay.test ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(line)
		if i := strings.IndexByte(verb, ' '); i >= 0 {
			verb = verb[:i]
		}

		switch verb {
		case "EHLO":
			reply("250-relay.test", "250-8BITMIME", "250 AUTH PLAIN")
		case "HELO":
			reply("250 relay.test")
		case "AUTH":
			if r.authFail {
				reply("535 5.7.8 authentication credentials invalid")
			} else {
				reply("235 2.7.0 authenticated")
			}
		case "MAIL", "RSET", "NOOP":
			reply("250 2.0.0 ok")
		case "RCPT":
			rcpt := strings.ToLower(line)
			switch {
			case strings.Contains(rcpt, "<bad@"):
				reply("550 5.1.1 no such user")
			case strings.Contains(rcpt, "<busy@"):
				reply("451 4.3.0 try again later")
			default:
				reply("250 2.1.5 ok")
			}
		case "DATA":
			reply("354 end data with <CR><LF>.<CR><LF>")
			if _, err := tp.ReadDotBytes(); err != nil {
				return
			}
			r.delivered.Add(1)
			reply("250 2.0.0 queued")
		case "QUIT":
			reply("221 2.0.0 bye")
			return
		default:
			reply("502 5.5.2 command not recognized")
		}
	}
}
