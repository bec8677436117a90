// Package demo builds a small scripted widget tree on an engine.
//
// A window holds a button and a label. A periodic input timer on the window
// replays a script of resizes, clicks and a content load:
//
//   - resize propagates from the window to every child, and each child asks
//     the window for a redraw; the redraws are coalesced with PostAfter
//   - clicks on the button arm a double-click timer; a second click before
//     it expires becomes a double click
//   - load runs asynchronously on the label and hands its result back to
//     the loop with Engine.Dispatch
package demo

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/go-drift/pulse/pkg/engine"
	"github.com/go-drift/pulse/pkg/event"
	"github.com/go-drift/pulse/pkg/object"
	"github.com/go-drift/pulse/pkg/timer"
)

const (
	// DoubleClickTicks is how long a click waits for its second half.
	DoubleClickTicks timer.Tick = 12
	// RedrawDelay coalesces redraw requests made within this many ticks.
	RedrawDelay timer.Tick = 2
)

// Step is one scripted input.
type Step struct {
	Name string
	Args []any
}

// Script maps ticks to the inputs fired on them.
type Script map[timer.Tick][]Step

// DefaultScript is a window being dragged larger, a double click, a single
// click and a content load.
func DefaultScript() Script {
	return Script{
		1:  {{Name: "resize", Args: []any{640, 480}}},
		2:  {{Name: "resize", Args: []any{720, 540}}},
		3:  {{Name: "resize", Args: []any{800, 600}}},
		5:  {{Name: "load", Args: []any{"labels/en.txt"}}},
		10: {{Name: "click"}},
		15: {{Name: "click"}},
		40: {{Name: "click"}},
	}
}

// Last returns the last scripted tick.
func (s Script) Last() timer.Tick {
	var last timer.Tick
	for t := range s {
		last = max(last, t)
	}
	return last
}

// Counters tallies what the scene handled.
type Counters struct {
	Resizes      atomic.Int64
	Redraws      atomic.Int64
	Clicks       atomic.Int64
	SingleClicks atomic.Int64
	DoubleClicks atomic.Int64
	Loads        atomic.Int64
}

// Scene is the demo widget tree.
type Scene struct {
	Engine *engine.Engine
	Window *object.Object
	Button *object.Object
	Label  *object.Object

	Counters Counters

	out    io.Writer
	script Script
	input  *timer.Timer
	click  *timer.Timer
	text   string
}

// New builds the scene on e, writing a line per handled event to out.
func New(e *engine.Engine, out io.Writer, script Script) (*Scene, error) {
	if out == nil {
		out = io.Discard
	}
	s := &Scene{
		Engine: e,
		Window: e.NewObject("window"),
		Button: e.NewObject("button"),
		Label:  e.NewObject("label"),
		out:    out,
		script: script,
	}
	if err := s.Window.AddChild(s.Button); err != nil {
		return nil, err
	}
	if err := s.Window.AddChild(s.Label); err != nil {
		return nil, err
	}
	if err := s.register(); err != nil {
		return nil, err
	}

	s.click = timer.New(s.clickExpired, s.Button, 0)
	s.input = timer.New(s.replay, nil, timer.KeepOnReload)
	if err := s.Window.Schedule(s.input, 1, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scene) register() error {
	if _, err := s.Window.On("resize", s.onWindowResize, "s", "window"); err != nil {
		return err
	}
	s.Window.SetFlags("resize", event.FlagPropagate)

	for _, child := range []*object.Object{s.Button, s.Label} {
		if _, err := child.On("resize", s.onChildResize, ""); err != nil {
			return err
		}
	}
	if _, err := s.Window.On("redraw", s.onRedraw, ""); err != nil {
		return err
	}
	if _, err := s.Button.On("click", s.onClick, ""); err != nil {
		return err
	}
	if _, err := s.Button.On("single-click", s.onSingleClick, ""); err != nil {
		return err
	}
	if _, err := s.Button.On("double-click", s.onDoubleClick, ""); err != nil {
		return err
	}
	if _, err := s.Label.On("load", s.onLoad, "p", s); err != nil {
		return err
	}
	s.Label.SetFlags("load", event.FlagAsync)
	return nil
}

// Done reports whether the script has run out and no work is pending
// besides the input timer.
func (s *Scene) Done() bool {
	now := s.Engine.Source().Now()
	if now <= s.script.Last() {
		return false
	}
	if s.Button.IsScheduled(s.click) {
		return false
	}
	for _, t := range s.Window.Timers() {
		if t != s.input {
			return false
		}
	}
	st := s.Engine.Stats().Executor
	return st.Completed >= st.Submitted && s.Engine.PendingDispatch() == 0
}

// Text returns the label text delivered by the last load.
func (s *Scene) Text() string { return s.text }

func (s *Scene) printf(format string, args ...any) {
	fmt.Fprintf(s.out, "tick %4d  ", s.Engine.Source().Now())
	fmt.Fprintf(s.out, format, args...)
	fmt.Fprintln(s.out)
}

// replay is the input timer callback. It fires every tick.
func (s *Scene) replay(_ any, _ timer.Tick) timer.Tick {
	steps := s.script[s.Engine.Source().Now()]
	for _, step := range steps {
		s.feed(step)
	}
	return 1
}

func (s *Scene) feed(step Step) {
	var err error
	switch step.Name {
	case "resize":
		err = s.Engine.Post(nil, s.Window, "resize", "i i", step.Args...)
	case "click":
		err = s.Engine.Post(nil, s.Button, "click", "")
	case "load":
		err = s.Engine.Post(s.Window, s.Label, "load", "s", step.Args...)
	default:
		err = fmt.Errorf("unknown input %q", step.Name)
	}
	if err != nil {
		s.printf("input %s failed: %v", step.Name, err)
	}
}

// The window's bound name comes first, then width and height. Children
// receive the window's arguments unchanged.
func (s *Scene) onWindowResize(ev *event.Event) error {
	s.Counters.Resizes.Add(1)
	s.printf("%s resized to %dx%d", ev.Arg(0).Str(), ev.Arg(1).Int(), ev.Arg(2).Int())
	return nil
}

func (s *Scene) onChildResize(ev *event.Event) error {
	s.Counters.Resizes.Add(1)
	self := ev.Self().(*object.Object)
	s.printf("  %s relayout for %dx%d", self.Name(), ev.Arg(1).Int(), ev.Arg(2).Int())
	return s.Engine.Dispatcher().PostAfter(self, s.Window, "redraw", RedrawDelay, "s", self.Name())
}

func (s *Scene) onRedraw(ev *event.Event) error {
	s.Counters.Redraws.Add(1)
	s.printf("window redraw (last request from %s)", ev.Arg(0).Str())
	return nil
}

func (s *Scene) onClick(*event.Event) error {
	s.Counters.Clicks.Add(1)
	if s.Button.IsScheduled(s.click) {
		s.Button.Cancel(s.click)
		return s.Engine.Post(s.Button, s.Button, "double-click", "")
	}
	return s.Button.Schedule(s.click, DoubleClickTicks, true)
}

func (s *Scene) clickExpired(arg any, _ timer.Tick) timer.Tick {
	button := arg.(*object.Object)
	if err := s.Engine.Post(button, button, "single-click", ""); err != nil {
		s.printf("single-click failed: %v", err)
	}
	return 0
}

func (s *Scene) onSingleClick(*event.Event) error {
	s.Counters.SingleClicks.Add(1)
	s.printf("button single click")
	return nil
}

func (s *Scene) onDoubleClick(*event.Event) error {
	s.Counters.DoubleClicks.Add(1)
	s.printf("button double click")
	return nil
}

// onLoad runs on an executor goroutine. It only touches the scene through
// Engine.Dispatch.
func (s *Scene) onLoad(ev *event.Event) error {
	scene := ev.Arg(0).Pointer().(*Scene)
	path := ev.Arg(1).Str()
	text := fmt.Sprintf("%d bytes from %s", len(path)*64, path)
	scene.Engine.Dispatch(func() {
		scene.Counters.Loads.Add(1)
		scene.text = text
		scene.printf("label loaded %s", text)
	})
	return nil
}

// Summary renders the counters in a stable order.
func (s *Scene) Summary() []string {
	c := &s.Counters
	m := map[string]int64{
		"resizes":       c.Resizes.Load(),
		"redraws":       c.Redraws.Load(),
		"clicks":        c.Clicks.Load(),
		"single-clicks": c.SingleClicks.Load(),
		"double-clicks": c.DoubleClicks.Load(),
		"loads":         c.Loads.Load(),
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%-14s %d", k, m[k])
	}
	return out
}
