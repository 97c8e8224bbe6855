package platform

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"saberd/animation"
	"saberd/config"
	"saberd/logging"
	"saberd/util"
)

// Simulated key presses hold a button down for tapHold; the shifted
// variants hold long enough to register as a long press.
const (
	tapHold    = 250 * time.Millisecond
	motionHold = 400 * time.Millisecond
)

// buttonPulse is a simulated press window.
type buttonPulse struct {
	until time.Time
}

// motionPulse is an injected acceleration magnitude, active until its
// deadline.
type motionPulse struct {
	magnitude float64
	until     time.Time
}

// TUIPlatform simulates the saber hardware in a terminal: the blade
// and indicator pixels are drawn as colored block runes, keys stand in
// for the buttons and for swing and hit motion, and the log output is
// routed into a scrollable pane.
type TUIPlatform struct {
	conf  *config.Config
	chain *chainLayout

	tviewapp     *tview.Application
	intro        *tview.TextView
	bladeView    *tview.TextView
	logView      *tview.TextView
	motionViewer *MotionViewer

	ossignalChan chan os.Signal
	readyChan    chan bool
	logFlushOnce sync.Once

	motion  *util.AtomicEvent[motionPulse]
	buttons map[ButtonID]*util.AtomicEvent[buttonPulse]

	wakeChan chan struct{}

	storeMu sync.Mutex
	store   map[int]byte

	audioMu    sync.Mutex
	nowPlaying string
	playUntil  time.Time

	longHold time.Duration
}

func NewTUIPlatform(conf *config.Config, ossignalchan chan os.Signal) (*TUIPlatform, error) {
	chain, err := newChainLayout(conf.Saber.NumPixels, false)
	if err != nil {
		return nil, err
	}
	inst := &TUIPlatform{
		conf:         conf,
		chain:        chain,
		ossignalChan: ossignalchan,
		readyChan:    make(chan bool),
		motion:       util.NewAtomicEvent[motionPulse](),
		buttons: map[ButtonID]*util.AtomicEvent[buttonPulse]{
			ButtonPower:    util.NewAtomicEvent[buttonPulse](),
			ButtonActivity: util.NewAtomicEvent[buttonPulse](),
		},
		wakeChan: make(chan struct{}, 1),
		store:    make(map[int]byte),
		longHold: conf.Saber.LongPressTime + tapHold,
	}
	return inst, nil
}

// Ready is closed once the TUI has drawn for the first time and the
// log output has been attached.
func (s *TUIPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *TUIPlatform) Start() error {
	s.initTUI()
	return nil
}

func (s *TUIPlatform) Stop() {
	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

// --- MotionSensor ---

func (s *TUIPlatform) ReadMotion() (float64, float64, float64, error) {
	p := s.motion.Value()
	var mag float64
	if time.Now().Before(p.until) {
		mag = p.magnitude
	}
	if s.motionViewer != nil {
		s.motionViewer.Update(mag)
	}
	// Injected magnitude is the squared X/Z magnitude; report it all
	// on the X axis.
	return math.Sqrt(mag), 0, 0, nil
}

// --- Buttons ---

func (s *TUIPlatform) ReadButtonRaw(id ButtonID) (bool, error) {
	ev, ok := s.buttons[id]
	if !ok {
		return false, fmt.Errorf("unknown button %v", id)
	}
	return time.Now().Before(ev.Value().until), nil
}

// --- Battery ---

func (s *TUIPlatform) ReadBatteryRaw() (float64, error) {
	// A healthy cell, as far as the simulator is concerned.
	return 0.62, nil
}

// --- LEDOutput ---

func (s *TUIPlatform) PixelCount(t Target) int {
	return s.chain.count(t)
}

func (s *TUIPlatform) SetPixel(t Target, idx int, c animation.Color) {
	s.chain.set(t, idx, c)
}

func (s *TUIPlatform) Show() error {
	if s.tviewapp == nil {
		return nil
	}
	s.tviewapp.QueueUpdateDraw(s.renderBlade)
	return nil
}

// --- AudioOutput ---

func (s *TUIPlatform) Play(clip string, loop bool) error {
	d, err := wavDuration(clipPath(s.conf.Sounds.Dir, clip))
	if err != nil {
		d = time.Second
	}
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	s.nowPlaying = clip
	if loop {
		s.playUntil = time.Now().Add(24 * time.Hour)
	} else {
		s.playUntil = time.Now().Add(d)
	}
	return nil
}

func (s *TUIPlatform) StopAudio() {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	s.nowPlaying = ""
	s.playUntil = time.Time{}
}

func (s *TUIPlatform) IsPlaying() bool {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return time.Now().Before(s.playUntil)
}

func (s *TUIPlatform) ClipDuration(clip string) (time.Duration, error) {
	return wavDuration(clipPath(s.conf.Sounds.Dir, clip))
}

// --- Persistence ---

func (s *TUIPlatform) SaveByte(slot int, b byte) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	s.store[slot] = b
	return nil
}

func (s *TUIPlatform) LoadByte(slot int) (byte, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	b, ok := s.store[slot]
	if !ok {
		return 0, fmt.Errorf("slot %d never written", slot)
	}
	return b, nil
}

// --- Sleeper ---

func (s *TUIPlatform) WaitForWake(timeout time.Duration) bool {
	select {
	case <-s.wakeChan:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *TUIPlatform) pressButton(id ButtonID, hold time.Duration) {
	s.buttons[id].Send(buttonPulse{until: time.Now().Add(hold)})
	select {
	case s.wakeChan <- struct{}{}:
	default:
	}
}

func (s *TUIPlatform) injectMotion(magnitude float64) {
	s.motion.Send(motionPulse{magnitude: magnitude, until: time.Now().Add(motionHold)})
}

func (s *TUIPlatform) introText() string {
	line1 := "Hit [blue]p[-]/[blue]a[-] to tap the power/aux button, [blue]P[-]/[blue]A[-] to hold it"
	line2 := "Hit [blue]s[-] to swing, [blue]h[-] to clash the blade"
	line3 := "Hit [#ff0000]q[-] to exit, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s\n%s", line1, line2, line3)
}

func (s *TUIPlatform) initTUI() {
	s.tviewapp = tview.NewApplication()

	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.introText())
	s.intro.SetBorder(true).SetTitle(" SABERD Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.bladeView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.bladeView.SetBorder(true).SetTitle(" Blade ")
	s.bladeView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.motionViewer = NewMotionViewer(s.tviewapp)

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 5, 0, false).
		AddItem(s.bladeView, 5, 0, false).
		AddItem(s.motionViewer.View(), 5, 0, false).
		AddItem(s.logView, 0, 1, true)

	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logging.SetOutput(tview.ANSIWriter(s.logView))
			close(s.readyChan)
		})
	})

	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.tviewapp.Stop()
			s.ossignalChan <- os.Interrupt
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'p':
				s.pressButton(ButtonPower, tapHold)
				return nil
			case 'P':
				s.pressButton(ButtonPower, s.longHold)
				return nil
			case 'a':
				s.pressButton(ButtonActivity, tapHold)
				return nil
			case 'A':
				s.pressButton(ButtonActivity, s.longHold)
				return nil
			case 's':
				s.injectMotion(s.conf.Saber.SwingThreshold * 1.5)
				return nil
			case 'h':
				s.injectMotion(s.conf.Saber.HitThreshold * 1.5)
				return nil
			case 'q', 'Q':
				s.ossignalChan <- os.Interrupt
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "error running TUI: %v\n", err)
			s.ossignalChan <- os.Interrupt
		}
	}()
}

// renderBlade redraws the blade and indicator pane. Must run on the
// TUI thread via QueueUpdateDraw.
func (s *TUIPlatform) renderBlade() {
	var buf strings.Builder

	buf.WriteString(" ")
	for i := 0; i < s.chain.count(TargetStrip); i++ {
		c := s.chain.get(TargetStrip, i)
		if c.IsOff() {
			buf.WriteString(" ")
		} else {
			buf.WriteString(colorTag(c) + "█[-]")
		}
	}
	buf.WriteString("\n\n ")

	s.audioMu.Lock()
	clip := s.nowPlaying
	playing := time.Now().Before(s.playUntil)
	s.audioMu.Unlock()

	buf.WriteString(fmt.Sprintf("status %s◉[-]  pwr %s◉[-]  aux %s◉[-]",
		colorTag(s.chain.get(TargetStatusPixel, 0)),
		colorTag(s.chain.get(TargetPowerButton, 0)),
		colorTag(s.chain.get(TargetActivityButton, 0))))
	if playing {
		buf.WriteString(fmt.Sprintf("   [green]♪ %s[-]", clip))
	}
	s.bladeView.SetText(buf.String())
}

// colorTag renders a pixel as a tview color tag, scaled up so dim
// colors stay distinguishable on a terminal.
func colorTag(c animation.Color) string {
	maxc := math.Max(float64(c.R), math.Max(float64(c.G), float64(c.B)))
	if maxc == 0 {
		return "[#303030]"
	}
	factor := 255 / maxc
	r := math.Min(float64(c.R)*factor, 255)
	g := math.Min(float64(c.G)*factor, 255)
	b := math.Min(float64(c.B)*factor, 255)
	return fmt.Sprintf("[#%02x%02x%02x]", byte(r), byte(g), byte(b))
}
