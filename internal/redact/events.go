package redact

import "fmt"

// PointerKind identifies a pointer event.
type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
)

func (k PointerKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	default:
		return fmt.Sprintf("PointerKind(%d)", int(k))
	}
}

// PointerEvent is one input event in canvas coordinates.
type PointerEvent struct {
	Kind  PointerKind
	Point Point
}

// Dispatch routes ev to the matching draft operation and reports whether the
// editor state changed. A second down while a draft is open is ignored.
func (e *Editor) Dispatch(ev PointerEvent) bool {
	switch ev.Kind {
	case PointerDown:
		return e.StartDraft(ev.Point)
	case PointerMove:
		return e.UpdateDraft(ev.Point)
	case PointerUp:
		_, committed := e.CommitDraft()
		return committed
	default:
		return false
	}
}

// Drag expands a rectangle into the down/move/up sequence a user would
// produce dragging from (x, y) to (x+w, y+h).
func Drag(x, y, w, h float64) []PointerEvent {
	return []PointerEvent{
		{Kind: PointerDown, Point: Point{X: x, Y: y}},
		{Kind: PointerMove, Point: Point{X: x + w/2, Y: y + h/2}},
		{Kind: PointerMove, Point: Point{X: x + w, Y: y + h}},
		{Kind: PointerUp, Point: Point{X: x + w, Y: y + h}},
	}
}

// Replay dispatches events in order and returns the number of rectangles
// committed.
func (e *Editor) Replay(events []PointerEvent) int {
	committed := 0
	for _, ev := range events {
		if ev.Kind == PointerUp {
			if _, ok := e.CommitDraft(); ok {
				committed++
			}
			continue
		}
		e.Dispatch(ev)
	}
	return committed
}
