package platform

import (
	"fmt"
	"math"
	"sync"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const motionHistorySize = 500

// MotionViewer is a TUI pane showing the recent accelerometer
// magnitude with simple running statistics, useful for picking swing
// and hit thresholds.
type MotionViewer struct {
	app  *tview.Application
	view *tview.TextView

	mu     sync.Mutex
	values deque.Deque[float64]
}

func NewMotionViewer(app *tview.Application) *MotionViewer {
	mv := &MotionViewer{app: app}
	mv.values.Grow(motionHistorySize)

	mv.view = tview.NewTextView()
	mv.view.SetDynamicColors(true)
	mv.view.SetTextAlign(tview.AlignLeft)
	mv.view.SetBorder(true).SetTitle(" Motion ").SetTitleColor(tcell.ColorLightBlue)
	mv.view.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))
	return mv
}

func (mv *MotionViewer) View() tview.Primitive {
	return mv.view
}

// Update records one magnitude sample and schedules a redraw. Safe
// for concurrent use.
func (mv *MotionViewer) Update(magnitude float64) {
	mv.mu.Lock()
	if mv.values.Len() == motionHistorySize {
		mv.values.PopFront()
	}
	mv.values.PushBack(magnitude)
	line1, line2 := mv.prepareDisplayStrings()
	mv.mu.Unlock()

	mv.app.QueueUpdateDraw(func() {
		mv.view.SetText(fmt.Sprintf("%s\n%s", line1, line2))
	})
}

// prepareDisplayStrings must be called with the mutex held.
func (mv *MotionViewer) prepareDisplayStrings() (string, string) {
	n := mv.values.Len()
	if n == 0 {
		return " no samples", ""
	}

	var sum float64
	minv, maxv := mv.values.At(0), mv.values.At(0)
	for i := 0; i < n; i++ {
		v := mv.values.At(i)
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for i := 0; i < n; i++ {
		d := mv.values.At(i) - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(n))

	latest := mv.values.At(n - 1)
	line1 := fmt.Sprintf(" magnitude: [yellow]%7.1f[-]   [min|mean|max] [%6.1f|%6.1f|%6.1f]",
		latest, minv, mean, maxv)
	line2 := fmt.Sprintf(" samples: %4d        stddev %6.1f", n, stddev)
	return line1, line2
}
