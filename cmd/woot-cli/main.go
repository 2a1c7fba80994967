// Command woot-cli edits a document served by the woot server from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"

	"github.com/brunokim/woot/delta"
	"github.com/brunokim/woot/woot"
)

var (
	addr = flag.String("addr", "ws://localhost:8009/ws", "websocket address of the server")
	doc  = flag.String("doc", "", "document to join. If empty, a new document is created")
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("show"),
	readline.PcItem("insert"),
	readline.PcItem("delete"),
	readline.PcItem("bold"),
	readline.PcItem("set"),
	readline.PcItem("quit"),
)

const usage = `commands:
  show                   print the text
  insert <pos> <text>    insert text at a position
  delete <pos> [count]   delete chars from a position
  bold <pos> [count]     make chars bold
  set <text>             replace the whole text
  quit`

var errQuit = errors.New("quit")

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	s, err := dialSession(context.Background(), *addr, *doc, os.Stdout)
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Printf("joined %s as site %d\n", s.doc, s.replica.SiteID())
	go func() {
		if err := s.run(); err != nil {
			fmt.Fprintf(os.Stderr, "disconnected: %v\n", err)
		}
	}()

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "woot> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		}
		err = execute(s, line, os.Stdout)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// Runs a single command line.
func execute(s *session, line string, out io.Writer) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
		return nil
	case "help":
		fmt.Fprintln(out, usage)
		return nil
	case "show":
		fmt.Fprintf(out, "%q\n", s.text())
		return nil
	case "set":
		return s.replace(arg)
	case "quit", "exit":
		return errQuit
	}
	d, err := parseEdit(cmd, arg)
	if err != nil {
		return err
	}
	return s.edit(d)
}

// Parses an insert, delete or bold command into a delta.
func parseEdit(cmd, arg string) (delta.Delta, error) {
	first, rest, _ := strings.Cut(arg, " ")
	pos, err := strconv.Atoi(first)
	if err != nil || pos < 0 {
		return nil, fmt.Errorf("%s: invalid position %q", cmd, first)
	}
	count := 1
	if cmd != "insert" && rest != "" {
		if count, err = strconv.Atoi(rest); err != nil || count < 1 {
			return nil, fmt.Errorf("%s: invalid count %q", cmd, rest)
		}
	}
	switch cmd {
	case "insert":
		if rest == "" {
			return nil, fmt.Errorf("insert: missing text")
		}
		return delta.Delta{{Retain: pos}, {Insert: rest}}.Compact(), nil
	case "delete":
		return delta.Delta{{Retain: pos}, {Delete: count}}.Compact(), nil
	case "bold":
		return delta.Delta{{Retain: pos}, {Retain: count, Attributes: woot.Attributes{"bold": true}}}.Compact(), nil
	}
	return nil, fmt.Errorf("unknown command %q, try help", cmd)
}
