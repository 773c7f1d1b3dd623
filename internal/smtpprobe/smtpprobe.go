// Package smtpprobe asks a mail exchanger whether a mailbox exists by walking
// the SMTP envelope up to RCPT TO. No message is ever sent.
package smtpprobe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 8 * time.Second
	DefaultPort    = 25
	maxReplyLines  = 64
)

// Verdict is the tri-state outcome of a probe.
type Verdict int

const (
	Indeterminate Verdict = iota
	Exists
	NotExists
)

func (v Verdict) String() string {
	switch v {
	case Exists:
		return "exists"
	case NotExists:
		return "does_not_exist"
	default:
		return "indeterminate"
	}
}

// State is a step of the probe conversation.
type State int

const (
	AwaitGreeting State = iota
	SendHelo
	AwaitHelo
	SendMailFrom
	AwaitMailFrom
	SendRcptTo
	AwaitRcptTo
	Done
)

var stateNames = [...]string{
	"await_greeting", "send_helo", "await_helo", "send_mail_from",
	"await_mail_from", "send_rcpt_to", "await_rcpt_to", "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Result describes how a probe ended.
type Result struct {
	Verdict Verdict
	Host    string
	// Code is the last reply code read, 0 if none.
	Code int
	// State is where the conversation stopped.
	State  State
	Detail string
}

// Dialer opens the TCP connection to an exchanger.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Prober struct {
	Dialer  Dialer
	Timeout time.Duration
	Port    int
	// HeloDomain overrides the domain announced in HELO and MAIL FROM.
	HeloDomain string
	Limiter    *rate.Limiter
	Logger     *slog.Logger
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

func (p *Prober) port() int {
	if p.Port > 0 {
		return p.Port
	}
	return DefaultPort
}

func (p *Prober) dialer() Dialer {
	if p.Dialer != nil {
		return p.Dialer
	}
	return &net.Dialer{}
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Transition applies a reply code to a waiting state. It returns the next
// state and, when the next state is Done, the verdict.
func Transition(s State, code int) (State, Verdict) {
	switch s {
	case AwaitGreeting:
		if code == 220 {
			return SendHelo, Indeterminate
		}
	case AwaitHelo:
		if code == 250 {
			return SendMailFrom, Indeterminate
		}
	case AwaitMailFrom:
		if code == 250 {
			return SendRcptTo, Indeterminate
		}
	case AwaitRcptTo:
		switch code {
		case 250:
			return Done, Exists
		case 550, 551, 553:
			return Done, NotExists
		}
	}
	return Done, Indeterminate
}

// Probe runs one conversation against mxHost. Every failure mode (dial,
// timeout, unexpected reply) yields Indeterminate; the connection is always
// closed before returning.
func (p *Prober) Probe(ctx context.Context, mxHost, address, local, domain string) Result {
	res := Result{Host: mxHost, State: AwaitGreeting}
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			res.Detail = "throttled: " + err.Error()
			return res
		}
	}
	conn, err := p.dialer().DialContext(ctx, "tcp", net.JoinHostPort(mxHost, strconv.Itoa(p.port())))
	if err != nil {
		res.Detail = "dial: " + err.Error()
		p.logger().Debug("smtp dial failed", "mx", mxHost, "err", err)
		return res
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	helo := p.HeloDomain
	if helo == "" {
		helo = domain
	}
	res = converse(conn, res, helo, address)
	if res.Detail != "" && ctx.Err() != nil {
		res.Detail = "timeout: " + res.Detail
	}
	p.logger().Debug("smtp probe finished", "mx", mxHost, "local", local, "verdict", res.Verdict.String(), "code", res.Code, "state", res.State.String())
	return res
}

func converse(rw io.ReadWriter, res Result, helo, address string) Result {
	br := bufio.NewReader(rw)
	state := AwaitGreeting
	for {
		res.State = state
		switch state {
		case SendHelo:
			state = send(rw, &res, AwaitHelo, "HELO %s", helo)
		case SendMailFrom:
			state = send(rw, &res, AwaitMailFrom, "MAIL FROM:<noreply@%s>", helo)
		case SendRcptTo:
			state = send(rw, &res, AwaitRcptTo, "RCPT TO:<%s>", address)
		case AwaitGreeting, AwaitHelo, AwaitMailFrom, AwaitRcptTo:
			code, text, err := readReply(br)
			if err != nil {
				res.Detail = fmt.Sprintf("read in %s: %v", state, err)
				res.Verdict = Indeterminate
				return res
			}
			res.Code = code
			next, verdict := Transition(state, code)
			if next == Done {
				res.Verdict = verdict
				if verdict == Indeterminate {
					res.Detail = fmt.Sprintf("%s: %d %s", state, code, text)
				}
				res.State = state
				return res
			}
			state = next
		default:
			return res
		}
	}
}

// send writes one command and returns the state to wait in, or Done on a write error.
func send(w io.Writer, res *Result, next State, format string, args ...any) State {
	if _, err := fmt.Fprintf(w, format+"\r\n", args...); err != nil {
		res.Detail = fmt.Sprintf("write in %s: %v", res.State, err)
		res.Verdict = Indeterminate
		return Done
	}
	return next
}

// readReply reads one possibly multi-line reply ("250-a", "250 b").
func readReply(br *bufio.Reader) (int, string, error) {
	var lines []string
	for i := 0; i < maxReplyLines; i++ {
		line, err := br.ReadString('\n')
		if err != nil {
			return 0, "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, "", fmt.Errorf("short reply %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return 0, "", fmt.Errorf("malformed reply %q", line)
		}
		if len(line) > 4 {
			lines = append(lines, line[4:])
		}
		if len(line) == 3 || line[3] != '-' {
			return code, strings.Join(lines, " "), nil
		}
	}
	return 0, "", fmt.Errorf("reply longer than %d lines", maxReplyLines)
}
