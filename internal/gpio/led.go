package gpio

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// LED blink modes.
const (
	BlinkFastMS = 100  // error / disconnected
	BlinkSlowMS = 1000 // normal operation
)

// LEDMode selects the blink pattern.
type LEDMode int

const (
	LEDOff LEDMode = iota
	LEDSlow
	LEDFast
	LEDSolid
)

// LED drives the status LED from its own goroutine; SetMode is safe to
// call from the host loop.
type LED struct {
	line *gpiocdev.Line

	mu   sync.Mutex
	mode LEDMode

	stop chan struct{}
	done chan struct{}
}

// NewLED requests the LED line and starts the blink loop in LEDOff mode.
func NewLED(chip string, line int) (*LED, error) {
	l, err := gpiocdev.RequestLine(chip, line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("sms-gateway-led"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request LED line")
	}

	led := &LED{
		line: l,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go led.run()
	return led, nil
}

// SetMode switches the blink pattern.
func (l *LED) SetMode(mode LEDMode) {
	l.mu.Lock()
	l.mode = mode
	l.mu.Unlock()
}

// Close stops the blink loop and releases the line.
func (l *LED) Close() error {
	close(l.stop)
	<-l.done
	l.line.SetValue(0)
	return l.line.Close()
}

func (l *LED) run() {
	defer close(l.done)

	value := 0
	for {
		l.mu.Lock()
		mode := l.mode
		l.mu.Unlock()

		var interval time.Duration
		switch mode {
		case LEDOff:
			value = 0
			interval = BlinkSlowMS * time.Millisecond
		case LEDSolid:
			value = 1
			interval = BlinkSlowMS * time.Millisecond
		case LEDSlow:
			value = 1 - value
			interval = BlinkSlowMS * time.Millisecond
		case LEDFast:
			value = 1 - value
			interval = BlinkFastMS * time.Millisecond
		}

		l.line.SetValue(value)

		select {
		case <-l.stop:
			return
		case <-time.After(interval):
		}
	}
}
