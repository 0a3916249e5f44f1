package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/presentation/tui"
	"github.com/aretw0/stepflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Action is one scripted wizard operation.
type Action struct {
	Do      string         `yaml:"do" json:"do"`
	Step    string         `yaml:"step,omitempty" json:"step,omitempty"`
	Profile string         `yaml:"profile,omitempty" json:"profile,omitempty"`
	Payload domain.Payload `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Script is a recorded sequence of actions replayed against a fresh session.
type Script struct {
	Flags   map[string]bool `yaml:"flags,omitempty"`
	Actions []Action        `yaml:"actions"`
}

// LoadScript reads a YAML (or JSON) script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error parsing script %s: %w", path, err)
	}
	return &s, nil
}

// SimulateOptions configures a simulation.
type SimulateOptions struct {
	Flags map[string]bool
	// Render turns markdown into terminal output. Nil prints markdown as is.
	Render func(string) (string, error)
	// JSON prints the final snapshot as JSON instead of markdown.
	JSON bool
}

// Simulator drives one session from text commands or a script.
type Simulator struct {
	engine *stepflow.Engine
	out    io.Writer
	opts   SimulateOptions
	sess   *stepflow.Session
}

// NewSimulator creates a simulator writing to out.
func NewSimulator(engine *stepflow.Engine, out io.Writer, opts SimulateOptions) *Simulator {
	if opts.Render == nil {
		opts.Render = func(s string) (string, error) { return s, nil }
	}
	return &Simulator{engine: engine, out: out, opts: opts}
}

// RunScript replays every action, stopping at the first error.
func (s *Simulator) RunScript(ctx context.Context, script *Script) error {
	flags := s.opts.Flags
	if script.Flags != nil {
		flags = script.Flags
	}
	if err := s.start(ctx, flags); err != nil {
		return err
	}
	defer s.end()

	for i, a := range script.Actions {
		res, err := s.apply(ctx, a)
		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i+1, a.Do, err)
		}
		if !s.opts.JSON {
			PrintSystemMessage(s.out, "%s -> %s %s", a.Do, res.Outcome, res.StepID)
		}
	}
	return s.printFinal(ctx)
}

// RunInteractive reads one command per line until EOF, "quit" or ctx is done.
func (s *Simulator) RunInteractive(ctx context.Context, in io.Reader) error {
	if err := s.start(ctx, s.opts.Flags); err != nil {
		return err
	}
	defer s.end()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.show(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return s.printFinal(ctx)
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		action, err := ParseCommand(line)
		if errors.Is(err, errQuit) {
			return s.printFinal(ctx)
		}
		if err != nil {
			PrintSystemMessage(s.out, "%v", err)
			continue
		}
		if action.Do == "context" {
			snap, err := s.sess.Snapshot(ctx)
			if err != nil {
				return err
			}
			s.print(tui.ContextMarkdown(snap.Context))
			continue
		}

		res, err := s.apply(ctx, action)
		if err != nil {
			PrintSystemMessage(s.out, "%v", err)
			continue
		}
		if res.Outcome != domain.OutcomeMoved {
			PrintSystemMessage(s.out, "%s", res.Outcome)
		}
		if err := s.show(ctx); err != nil {
			return err
		}
	}
}

var errQuit = errors.New("quit")

// ParseCommand turns an interactive line into an action.
//
//	next | back | reset | context | quit
//	goto <step>
//	complete [step] {json payload}
//	profile <id> | profile off
func ParseCommand(line string) (Action, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "n", "next":
		return Action{Do: "advance"}, nil
	case "b", "back":
		return Action{Do: "retreat"}, nil
	case "reset", "context":
		return Action{Do: verb}, nil
	case "q", "quit", "exit":
		return Action{}, errQuit
	case "g", "goto":
		if rest == "" {
			return Action{}, fmt.Errorf("usage: goto <step>")
		}
		return Action{Do: "goto", Step: rest}, nil
	case "p", "profile":
		switch rest {
		case "":
			return Action{}, fmt.Errorf("usage: profile <id> | profile off")
		case "off":
			return Action{Do: "deactivate"}, nil
		}
		return Action{Do: "activate", Profile: rest}, nil
	case "c", "complete":
		a := Action{Do: "complete"}
		if rest != "" && !strings.HasPrefix(rest, "{") {
			a.Step, rest, _ = strings.Cut(rest, " ")
			rest = strings.TrimSpace(rest)
		}
		if rest != "" {
			if err := json.Unmarshal([]byte(rest), &a.Payload); err != nil {
				return Action{}, fmt.Errorf("invalid payload: %w", err)
			}
		}
		return a, nil
	}
	return Action{}, fmt.Errorf("unknown command %q", verb)
}

func (s *Simulator) start(ctx context.Context, flags map[string]bool) error {
	sess, err := s.engine.Start(ctx, flags)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	s.sess = sess
	return nil
}

func (s *Simulator) end() {
	_ = s.sess.End(context.Background())
}

func (s *Simulator) apply(ctx context.Context, a Action) (domain.NavigationResult, error) {
	switch a.Do {
	case "advance":
		return s.sess.Advance(ctx)
	case "retreat":
		return s.sess.Retreat(ctx)
	case "reset":
		return s.sess.Reset(ctx)
	case "goto":
		return s.sess.GoTo(ctx, domain.StepID(a.Step))
	case "activate":
		return s.sess.ActivateProfile(ctx, a.Profile)
	case "deactivate":
		return s.sess.DeactivateProfile(ctx)
	case "complete":
		step := domain.StepID(a.Step)
		if step == "" {
			snap, err := s.sess.Snapshot(ctx)
			if err != nil {
				return domain.NavigationResult{}, err
			}
			step = snap.State.StepID
		}
		if step == "" {
			return domain.NavigationResult{}, fmt.Errorf("no current step to complete")
		}
		return s.sess.Complete(ctx, step, a.Payload)
	}
	return domain.NavigationResult{}, fmt.Errorf("unknown action %q", a.Do)
}

// show renders the step under the cursor.
func (s *Simulator) show(ctx context.Context) error {
	snap, err := s.sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	switch snap.State.Status {
	case domain.StatusIdle:
		PrintSystemMessage(s.out, "No step is available.")
		return nil
	case domain.StatusProfileActive:
		PrintSystemMessage(s.out, "Profile '%s' is active. Use 'complete <step> {json}' or 'profile off'.", snap.State.ProfileID)
		return nil
	}

	def, ok := s.engine.Registry().GetStep(snap.State.StepID)
	if !ok {
		def = domain.StepDefinition{ID: snap.State.StepID}
	}
	s.print(tui.StepMarkdown(snap, def))
	return nil
}

func (s *Simulator) printFinal(ctx context.Context) error {
	snap, err := s.sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	if s.opts.JSON {
		enc := json.NewEncoder(s.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	s.print(tui.ContextMarkdown(snap.Context))
	PrintSystemMessage(s.out, "Finished with %d of %d steps completed.", len(snap.Context.Completed()), len(snap.AvailableSteps))
	return nil
}

func (s *Simulator) print(markdown string) {
	out, err := s.opts.Render(markdown)
	if err != nil {
		out = markdown
	}
	fmt.Fprint(s.out, out)
}
