package platform

import (
	"fmt"

	"saberd/animation"
)

// chainSegment is one target's slice of the physical LED chain.
type chainSegment struct {
	offset  int
	count   int
	reverse bool
}

// chainLayout maps the logical LED targets onto a single daisy-chained
// strip: the blade pixels first, then the status pixel and the two
// button pixels. The blade may be wired tip-first, in which case its
// indices are reversed on the way out.
type chainLayout struct {
	segments map[Target]chainSegment
	pixels   []animation.Color
}

func newChainLayout(bladePixels int, bladeReversed bool) (*chainLayout, error) {
	if bladePixels <= 0 {
		return nil, fmt.Errorf("blade pixel count %d must be positive", bladePixels)
	}
	l := &chainLayout{segments: make(map[Target]chainSegment)}
	offset := 0
	add := func(t Target, count int, reverse bool) {
		l.segments[t] = chainSegment{offset: offset, count: count, reverse: reverse}
		offset += count
	}
	add(TargetStrip, bladePixels, bladeReversed)
	add(TargetStatusPixel, 1, false)
	add(TargetPowerButton, 1, false)
	add(TargetActivityButton, 1, false)
	l.pixels = make([]animation.Color, offset)
	return l, nil
}

func (l *chainLayout) count(t Target) int {
	return l.segments[t].count
}

func (l *chainLayout) set(t Target, idx int, c animation.Color) {
	seg, ok := l.segments[t]
	if !ok || idx < 0 || idx >= seg.count {
		return
	}
	if seg.reverse {
		idx = seg.count - 1 - idx
	}
	l.pixels[seg.offset+idx] = c
}

func (l *chainLayout) get(t Target, idx int) animation.Color {
	seg, ok := l.segments[t]
	if !ok || idx < 0 || idx >= seg.count {
		return animation.Color{}
	}
	if seg.reverse {
		idx = seg.count - 1 - idx
	}
	return l.pixels[seg.offset+idx]
}

// all returns the full chain in wire order.
func (l *chainLayout) all() []animation.Color {
	return l.pixels
}
