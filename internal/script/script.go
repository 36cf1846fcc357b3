// Package script connects the reference scanner and the resolver to the
// collaborators that compile and run scripts and deliver shell input.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/hishell/internal/resolve"
	"github.com/git-pkgs/hishell/internal/scan"
)

// ScriptExt is the extension of command scripts.
const ScriptExt = ".csx"

// ErrNotRunnable is returned by Handle for lines that do not name a command.
var ErrNotRunnable = errors.New("not a runnable command")

// Compiler turns stripped script text and the binaries it references into
// a runnable unit. Relative imports resolve against workDir.
type Compiler interface {
	Compile(ctx context.Context, text string, refs []string, workDir string) (Runnable, error)
}

// Runnable is a compiled script. Run returns the script's result and a
// transcript of everything it wrote to its output.
type Runnable interface {
	Run(ctx context.Context) (result, transcript string, err error)
}

// CommandEvent is delivered by the front end when a command is entered.
// Buffer holds the whole multi-line input and Line the trigger line.
type CommandEvent struct {
	Buffer string
	Line   string
}

// Input returns the buffer without the trailing trigger line.
func (e CommandEvent) Input() string {
	in := e.Buffer
	if len(in) >= len(e.Line) && strings.EqualFold(in[len(in)-len(e.Line):], e.Line) {
		in = in[:len(in)-len(e.Line)]
	}
	return strings.TrimRight(in, "\n")
}

// Matcher decides whether a line names a runnable command.
type Matcher interface {
	Match(line string) (name string, ok bool)
}

// DirMatcher matches commands stored as {Root}/{name}/{name}.csx. When
// Prefix is set, only lines starting with it are considered and the prefix
// is stripped from the name.
type DirMatcher struct {
	Root   string
	Prefix string
}

// ScriptPath returns where the script of command name lives.
func (m DirMatcher) ScriptPath(name string) string {
	return filepath.Join(m.Root, name, name+ScriptExt)
}

func (m DirMatcher) Match(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	name := fields[0]
	if m.Prefix != "" {
		rest, ok := strings.CutPrefix(name, m.Prefix)
		if !ok {
			return "", false
		}
		name = rest
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false
	}
	info, err := os.Stat(m.ScriptPath(name))
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return name, true
}

// Prepared is a script ready to compile.
type Prepared struct {
	Text       string
	References []string
	Skips      []resolve.Skip
	WorkDir    string
}

// Outcome is the result of running one command.
type Outcome struct {
	Command    string
	Input      string
	Result     string
	Transcript string
	Prepared   *Prepared
}

// Runner resolves, compiles and runs command scripts.
type Runner struct {
	resolver *resolve.Resolver
	compiler Compiler
	matcher  DirMatcher
	logger   *log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithPrefix requires command lines to start with prefix.
func WithPrefix(prefix string) Option {
	return func(r *Runner) {
		r.matcher.Prefix = prefix
	}
}

// NewRunner creates a runner for the commands stored under root.
func NewRunner(resolver *resolve.Resolver, compiler Compiler, root string, opts ...Option) *Runner {
	r := &Runner{
		resolver: resolver,
		compiler: compiler,
		matcher:  DirMatcher{Root: root},
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "script"}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Matcher returns the matcher used by Handle.
func (r *Runner) Matcher() DirMatcher {
	return r.matcher
}

// Prepare strips reference directives from text and resolves them. A
// malformed directive fails the whole script; unresolvable packages are
// reported in Skips.
func (r *Runner) Prepare(ctx context.Context, text, scriptDir string) (*Prepared, error) {
	stripped, refs, err := scan.Scan(text)
	if err != nil {
		return nil, err
	}
	p := &Prepared{Text: stripped, WorkDir: scriptDir}
	if len(refs) == 0 {
		return p, nil
	}

	res, err := r.resolver.ResolveReferences(ctx, refs, scriptDir)
	if err != nil {
		return nil, err
	}
	p.References = res.References
	p.Skips = res.Skips
	return p, nil
}

// Run prepares, compiles and runs text.
func (r *Runner) Run(ctx context.Context, text, scriptDir string) (*Outcome, error) {
	p, err := r.Prepare(ctx, text, scriptDir)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Prepared: p}

	unit, err := r.compiler.Compile(ctx, p.Text, p.References, p.WorkDir)
	if err != nil {
		return out, fmt.Errorf("compiling script: %w", err)
	}
	out.Result, out.Transcript, err = unit.Run(ctx)
	if err != nil {
		return out, fmt.Errorf("running script: %w", err)
	}
	return out, nil
}

// Handle runs the command named by ev.Line. It returns ErrNotRunnable
// when the line does not name a stored command.
func (r *Runner) Handle(ctx context.Context, ev CommandEvent) (*Outcome, error) {
	name, ok := r.matcher.Match(ev.Line)
	if !ok {
		return nil, ErrNotRunnable
	}

	path := r.matcher.ScriptPath(name)
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r.logger.Info("running command", "command", ev.Line)
	out, err := r.Run(ctx, string(text), filepath.Dir(path))
	if out != nil {
		out.Command = name
		out.Input = ev.Input()
	}
	if err != nil {
		r.logger.Error("command failed", "command", name, "err", err)
	}
	return out, err
}
