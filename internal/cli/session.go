package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/host"
)

const sessionHelp = `commands:
  step            execute one node
  run             execute continuously
  pause           stop after the node in flight
  mode <m>        switch to automatic or development
  break <node>    pause before node
  clear [node]    remove one breakpoint, or all
  start <node|*>  change the start node (* = whole graph)
  confirm         apply a pending start node and restart
  reject          drop a pending start node
  reset           start from the whole graph again
  status          show host state
  wait            block until the run ends
  quit            stop and exit`

// session drives a development-mode host from line commands.
type session struct {
	h   *host.Host
	lg  *graphfile.Graph
	out io.Writer
}

func newSession(h *host.Host, lg *graphfile.Graph, out io.Writer) *session {
	return &session{h: h, lg: lg, out: out}
}

// Run starts the host paused and executes commands from in until quit,
// end of input or ctx is done. It returns the last finished run.
func (s *session) Run(ctx context.Context, in io.Reader) (engine.Report, error) {
	if err := s.h.Start(ctx); err != nil {
		return engine.Report{}, err
	}
	s.printf("paused at start; type help for commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if s.exec(ctx, line) {
				break loop
			}
		}
	}

	s.h.Stop()
	return s.h.LastReport()
}

// exec runs one command line and reports whether the session should end.
func (s *session) exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	ctrl := s.h.Controller()

	switch cmd {
	case "step", "s":
		if err := s.ensureRunning(ctx); err != nil {
			s.printf("error: %v", err)
			return false
		}
		s.printf("step: %s", ctrl.Step())
	case "run", "r", "continue", "c":
		if err := s.ensureRunning(ctx); err != nil {
			s.printf("error: %v", err)
			return false
		}
		ctrl.Run()
		s.printf("running")
	case "pause", "p":
		ctrl.Pause()
		s.printf("paused")
	case "mode":
		if len(args) != 1 {
			s.printf("usage: mode automatic|development")
			return false
		}
		m, err := engine.ParseRunMode(args[0])
		if err != nil {
			s.printf("error: %v", err)
			return false
		}
		ctrl.SetRunMode(m)
		s.printf("mode: %s", m)
	case "break", "b":
		id, ok := s.node(args)
		if !ok {
			return false
		}
		if s.h.Debug().AddBreakpoint(id) {
			s.printf("breakpoint set on %s", s.lg.Label(id))
		} else {
			s.printf("breakpoint already set on %s", s.lg.Label(id))
		}
	case "clear":
		if len(args) == 0 {
			s.h.Debug().ClearBreakpoints()
			s.printf("breakpoints cleared")
			return false
		}
		id, ok := s.node(args)
		if !ok {
			return false
		}
		if s.h.Debug().RemoveBreakpoint(id) {
			s.printf("breakpoint removed from %s", s.lg.Label(id))
		} else {
			s.printf("no breakpoint on %s", s.lg.Label(id))
		}
	case "start":
		if len(args) != 1 {
			s.printf("usage: start <node|*>")
			return false
		}
		var id graph.NodeID
		if args[0] != "*" {
			var ok bool
			if id, ok = s.node(args); !ok {
				return false
			}
		}
		s.reportStart(id, func() (host.StartNodeResult, error) { return s.h.TrySetStartNode(id) })
	case "reset":
		s.reportStart(graph.NodeID{}, s.h.ResetToInitial)
	case "confirm":
		if !s.h.Status().HasPending {
			s.printf("nothing pending")
			return false
		}
		if err := s.h.ConfirmPendingStartNodeAndRestart(ctx); err != nil {
			s.printf("error: %v", err)
			return false
		}
		s.printf("restarted from %s", s.lg.Label(s.h.Status().StartNode))
	case "reject":
		s.h.RejectPendingStartNode()
		s.printf("pending start node dropped")
	case "status", "st":
		s.printStatus()
	case "wait", "w":
		r, err := s.h.Wait(ctx)
		if ctx.Err() != nil {
			return true
		}
		s.printf("run finished (%d executed, %d failed, %d unexecuted)",
			len(r.Executed), len(r.Failures), len(r.Unexecuted))
		if err != nil {
			s.printf("error: %v", err)
		}
	case "help", "h", "?":
		s.printf("%s", sessionHelp)
	case "quit", "q", "exit":
		return true
	default:
		s.printf("unknown command %q (try help)", cmd)
	}
	return false
}

// ensureRunning starts a new run when the previous one has finished, so
// step and run work after completion and after a start-node change.
func (s *session) ensureRunning(ctx context.Context) error {
	if s.h.IsRunning() {
		return nil
	}
	return s.h.Start(ctx)
}

func (s *session) node(args []string) (graph.NodeID, bool) {
	if len(args) != 1 {
		s.printf("expected one node name")
		return graph.NodeID{}, false
	}
	id, err := s.lg.Lookup(args[0])
	if err != nil {
		s.printf("error: %v", err)
		return graph.NodeID{}, false
	}
	return id, true
}

func (s *session) reportStart(id graph.NodeID, apply func() (host.StartNodeResult, error)) {
	res, err := apply()
	if err != nil {
		s.printf("error: %v", err)
		return
	}
	switch res {
	case host.RequireRestartConfirm:
		s.printf("start node %s pending: confirm or reject", s.lg.Label(id))
	default:
		s.printf("start node %s: %s", s.lg.Label(id), res)
	}
}

func (s *session) printStatus() {
	st := s.h.Status()
	flow := "paused"
	if st.Continuous {
		flow = "continuous"
	}
	s.printf("state: %s", st.State)
	s.printf("mode: %s (%s, %d pending steps)", st.RunMode, flow, st.PendingTokens)
	s.printf("start: %s", s.lg.Label(st.StartNode))
	if st.HasPending {
		s.printf("pending start: %s", s.lg.Label(st.PendingStart))
	}
	s.printf("epoch: %d", st.Epoch)
	s.printf("active: %s", strings.Join(labels(s.lg, st.Active), ", "))
	if len(st.Breakpoints) > 0 {
		s.printf("breakpoints: %s", strings.Join(labels(s.lg, st.Breakpoints), ", "))
	}
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}
