package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"codeberg.org/miketth/kbgroupd/pkg/xkblayouts"
	"go.uber.org/zap"
)

// eventWriteTimeout bounds how long one subscriber can hold up a
// layout event broadcast. Broadcasts run on the controller's event
// path, so a subscriber that stopped reading gets dropped instead of
// waited on.
const eventWriteTimeout = time.Second

type Server struct {
	ctrl     *kbgroupd.Controller
	registry *xkblayouts.XkbConfigRegistry
	log      *zap.SugaredLogger

	mu          sync.Mutex
	subscribers []net.Conn
}

// NewServer wires a server over ctrl. registry may be nil, in which
// case event payloads carry the short code in place of a display name.
func NewServer(ctrl *kbgroupd.Controller, registry *xkblayouts.XkbConfigRegistry, log *zap.SugaredLogger) *Server {
	s := &Server{ctrl: ctrl, registry: registry, log: log}
	ctrl.OnLayoutChanged(s.broadcastLayout)
	return s
}

// Serve accepts command connections on socketPath and event
// subscribers on eventSocketPath until ctx is done. Stale sockets from
// a previous run are replaced.
func (s *Server) Serve(ctx context.Context, socketPath, eventSocketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	_ = os.Remove(socketPath)
	_ = os.Remove(eventSocketPath)

	cmdLn, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer cmdLn.Close()

	evLn, err := net.Listen("unix", eventSocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", eventSocketPath, err)
	}
	defer evLn.Close()

	go func() {
		<-ctx.Done()
		cmdLn.Close()
		evLn.Close()
	}()
	go s.acceptSubscribers(evLn)

	for {
		conn, err := cmdLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.serveConn(conn)
	}
}

func (s *Server) acceptSubscribers(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.subscribers = append(s.subscribers, conn)
		s.mu.Unlock()
	}
}

// broadcastLayout pushes "activelayout>>index,code,name" to every
// subscriber. The display name is the last field so the commas inside
// names like "English (US, intl., with dead keys)" stay unambiguous.
func (s *Server) broadcastLayout(idx int, code string) {
	line := fmt.Sprintf("activelayout>>%d,%s,%s\n", idx, code, s.displayName(code))

	s.mu.Lock()
	defer s.mu.Unlock()
	alive := s.subscribers[:0]
	for _, conn := range s.subscribers {
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if _, err := conn.Write([]byte(line)); err != nil {
			conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	s.subscribers = alive
}

func (s *Server) displayName(code string) string {
	if s.registry == nil {
		return code
	}
	layout, variant := kbgroupd.SplitShortCode(code)
	if name := s.registry.GetLayoutPrettyName(layout, variant); name != "" {
		return name
	}
	return code
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		resp := s.dispatch(strings.TrimSpace(scanner.Text()))
		if _, err := fmt.Fprintln(conn, resp); err != nil {
			return
		}
	}
}

// dispatch runs one command line and renders the response line.
func (s *Server) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "error: empty command"
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "names":
		return "ok " + strings.Join(s.ctrl.GroupNames(), ",")

	case "active":
		return fmt.Sprintf("ok %d", s.ctrl.ActiveLayout())

	case "set":
		if len(args) != 1 {
			return "error: usage: set <index>"
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Sprintf("error: bad index %q", args[0])
		}
		if err := s.ctrl.SetLayoutGroup(idx); err != nil {
			return "error: " + err.Error()
		}
		return "ok"

	case "cycle":
		dir := 1
		if len(args) == 1 {
			switch args[0] {
			case "next", "+1":
				dir = 1
			case "prev", "-1":
				dir = -1
			default:
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Sprintf("error: bad direction %q", args[0])
				}
				dir = n
			}
		}
		if err := s.ctrl.CycleLayout(dir); err != nil {
			return "error: " + err.Error()
		}
		return "ok"

	case "reconfigure":
		if len(args) < 1 || len(args) > 3 {
			return "error: usage: reconfigure <layouts> [variants] [options]"
		}
		cfg := kbgroupd.Config{Layouts: splitList(args[0])}
		if len(args) > 1 {
			cfg.Variants = splitList(args[1])
		}
		if len(args) > 2 {
			cfg.Options = splitList(args[2])
		}
		if err := s.ctrl.Reconfigure(cfg); err != nil {
			return "error: " + err.Error()
		}
		return "ok"
	}

	return fmt.Sprintf("error: unknown command %q", cmd)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
