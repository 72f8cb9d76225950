package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrLaunch = errors.New("game server launch failed")

// DefaultArgs is used when no argument template is configured.
var DefaultArgs = []string{"-port", "{port}", "-players", "{players}"}

// Exit reports how a match process ended.
type Exit struct {
	Port int
	Code int
	Err  error
}

type Process interface {
	// Done yields exactly one Exit, then closes.
	Done() <-chan Exit
	Stop() error
}

type Launcher interface {
	Launch(ctx context.Context, port, maxPlayers int) (Process, error)
}

// Exec spawns the game server binary. It inherits the broker's stdin, stdout
// and stderr.
type Exec struct {
	Path string
	Args []string
	Log  *zap.Logger
}

func NewExec(path string, args []string, log *zap.Logger) *Exec {
	if len(args) == 0 {
		args = DefaultArgs
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Exec{Path: path, Args: args, Log: log.Named("launcher")}
}

// Launch does not tie the child to ctx; the match outlives the request.
func (e *Exec) Launch(ctx context.Context, port, maxPlayers int) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := e.command(port, maxPlayers)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, e.Path, err)
	}

	p := &process{cmd: cmd, port: port, done: make(chan Exit, 1)}
	e.Log.Info("game server started",
		zap.Int("port", port),
		zap.Int("max_players", maxPlayers),
		zap.Int("pid", cmd.Process.Pid))

	go p.wait(e.Log)
	return p, nil
}

func (e *Exec) command(port, maxPlayers int) *exec.Cmd {
	cmd := exec.Command(e.Path, expand(e.Args, port, maxPlayers)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func expand(tmpl []string, port, maxPlayers int) []string {
	r := strings.NewReplacer("{port}", strconv.Itoa(port), "{players}", strconv.Itoa(maxPlayers))
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		out[i] = r.Replace(a)
	}
	return out
}

type process struct {
	cmd  *exec.Cmd
	port int
	done chan Exit

	mu     sync.Mutex
	exited bool
}

func (p *process) Done() <-chan Exit { return p.done }

func (p *process) wait(log *zap.Logger) {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()

	code := p.cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// non-zero exit is already captured in code
		err = nil
	}
	if code != 0 || err != nil {
		log.Warn("game server exited abnormally", zap.Int("port", p.port), zap.Int("code", code), zap.Error(err))
	} else {
		log.Info("game server exited", zap.Int("port", p.port))
	}

	p.done <- Exit{Port: p.port, Code: code, Err: err}
	close(p.done)
}

func (p *process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill game server on port %d: %w", p.port, err)
	}
	return nil
}
