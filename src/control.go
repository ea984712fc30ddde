package r2span

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// ControlServer is the admin TCP surface: a fixed listener loop handing
// each accepted connection to its own goroutine, line-oriented commands,
// "+OK." / "-ERR <reason>" framing.
type ControlServer struct {
	reg     *Registry
	log     Logger
	version string

	mu       sync.Mutex
	ln       net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
	slots    chan struct{}
}

// NewControlServer binds commands to the given registry. version is
// reported by the `version` command.
func NewControlServer(reg *Registry, log Logger, version string) *ControlServer {
	if log == nil {
		log = NopLogger()
	}
	return &ControlServer{
		reg:      reg,
		log:      log,
		version:  version,
		shutdown: make(chan struct{}),
		slots:    make(chan struct{}, MaxControlClients),
	}
}

// ListenAndServe binds addr (host:port) and serves until Close is called.
func (c *ControlServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("r2span: control listen: %w", err)
	}
	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-c.shutdown:
				return nil
			default:
				return fmt.Errorf("r2span: control accept: %w", err)
			}
		}
		c.wg.Add(1)
		go c.handle(conn)
	}
}

// Close stops accepting new connections and waits for active ones to drain.
func (c *ControlServer) Close() error {
	close(c.shutdown)
	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	c.wg.Wait()
	return err
}

func (c *ControlServer) handle(conn net.Conn) {
	defer c.wg.Done()
	defer conn.Close()

	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	default:
		conn.Write([]byte(errReply("too many control connections") + "\n"))
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := c.dispatch(line)
		// A blank line terminates each reply so multi-line status/loopstats
		// bodies are unambiguous to a line-oriented client.
		if _, err := conn.Write([]byte(reply + "\n\n")); err != nil {
			c.log.Warnf("control: write to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func (c *ControlServer) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return errReply("empty command")
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "block":
		return c.cmdBlock(args, true)
	case "unblock":
		return c.cmdBlock(args, false)
	case "status":
		return c.cmdStatus(args)
	case "loopstats":
		return c.cmdLoopStats(args)
	case "threads":
		return c.cmdThreads()
	case "version":
		return okReply(c.version)
	case "variants":
		return c.cmdVariants(args)
	default:
		return errReply("unknown command " + cmd)
	}
}

func (c *ControlServer) spanArg(args []string) (*Span, []string, error) {
	if len(args) < 1 {
		return nil, nil, fmt.Errorf("missing span name")
	}
	span, ok := c.reg.Get(args[0])
	if !ok {
		return nil, nil, fmt.Errorf("no such span %q", args[0])
	}
	return span, args[1:], nil
}

func (c *ControlServer) cmdBlock(args []string, blocked bool) string {
	span, rest, err := c.spanArg(args)
	if err != nil {
		return errReply(err.Error())
	}
	if len(rest) == 0 {
		return errReply("block/unblock requires a channel id")
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil {
		return errReply("bad channel id " + rest[0])
	}
	if err := span.Block(ChannelID(n), blocked); err != nil {
		return errReply(err.Error())
	}
	return okReply("")
}

func (c *ControlServer) cmdStatus(args []string) string {
	span, _, err := c.spanArg(args)
	if err != nil {
		return errReply(err.Error())
	}
	st := span.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "variant=%s max_ani=%d max_dnis=%d ani_first=%t immediate_accept=%t monitor=%s max_loop_ms=%d total_loops=%d",
		st.Variant, st.MaxANI, st.MaxDNIS, st.ANIFirst, st.ImmediateAccept, st.MonitorID, st.MaxLoopMS, st.TotalLoops)
	for _, ch := range st.Channels {
		fmt.Fprintf(&b, "\nchan=%d state=%s txcas=%x rxcas=%x", ch.Channel, ch.State, ch.TxCAS, ch.RxCAS)
	}
	return okReply(b.String())
}

func (c *ControlServer) cmdLoopStats(args []string) string {
	span, _, err := c.spanArg(args)
	if err != nil {
		return errReply(err.Error())
	}
	stats := span.LoopStats()
	var b strings.Builder
	fmt.Fprintf(&b, "total=%d", stats.TotalLoops)
	for i, count := range stats.Buckets {
		pct := 0.0
		if stats.TotalLoops > 0 {
			pct = 100 * float64(count) / float64(stats.TotalLoops)
		}
		label := fmt.Sprintf("%dms", i*10)
		if i == len(stats.Buckets)-1 {
			label = "overflow"
		}
		fmt.Fprintf(&b, "\n%s=%d (%.3f%%)", label, count, pct)
	}
	return okReply(b.String())
}

func (c *ControlServer) cmdThreads() string {
	names := c.reg.Names()
	return okReply(strings.Join(names, ","))
}

func (c *ControlServer) cmdVariants(args []string) string {
	span, _, err := c.spanArg(args)
	if err != nil {
		return errReply(err.Error())
	}
	return okReply(strings.Join(span.Variants(), ","))
}

func okReply(body string) string {
	if body == "" {
		return "+OK."
	}
	return body + "\n+OK."
}

func errReply(reason string) string {
	return "-ERR " + reason + "."
}
