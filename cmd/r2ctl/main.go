// Command r2ctl is an interactive and scriptable client for the r2span
// admin control surface.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	var host = pflag.StringP("host", "H", "127.0.0.1", "Control surface host.")
	var port = pflag.IntP("port", "p", 7402, "Control surface port.")
	var timeout = pflag.DurationP("timeout", "t", 5*time.Second, "Dial timeout.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "r2ctl - admin client for the r2span control surface.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: r2ctl [options] [command...]\n\n")
		fmt.Fprintf(os.Stderr, "With no command, reads commands interactively from stdin.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	addr := net.JoinHostPort(*host, fmt.Sprintf("%d", *port))
	conn, err := net.DialTimeout("tcp", addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "r2ctl: connect %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if args := pflag.Args(); len(args) > 0 {
		cmd := strings.Join(args, " ")
		reply, err := sendCommand(conn, reader, cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "r2ctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(reply)
		if strings.HasPrefix(reply, "-ERR") {
			os.Exit(1)
		}
		return
	}

	runInteractive(conn, reader)
}

// sendCommand writes one command line and reads the reply, which the
// control surface always terminates with a blank line (a plain "+OK."
// or "-ERR ..." line, or a multi-line body followed by one).
func sendCommand(conn net.Conn, reader *bufio.Reader, cmd string) (string, error) {
	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func runInteractive(conn net.Conn, reader *bufio.Reader) {
	fmt.Println("r2ctl interactive mode. Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("r2ctl> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if cmd == "quit" || cmd == "exit" {
			return
		}
		reply, err := sendCommand(conn, reader, cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "r2ctl: %v\n", err)
			return
		}
		fmt.Println(reply)
	}
}
