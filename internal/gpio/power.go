// Package gpio drives the two lines the gateway owns: the SIM module's
// power key and the status LED.
package gpio

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// Power key pulse timing (SIM800L/SIM7600 PWRKEY).
const (
	PowerOnPulseMS = 500
	PowerOnWaitMS  = 5000 // boot time before the UART answers
)

// PowerController pulses the modem power key.
type PowerController struct {
	line   *gpiocdev.Line
	logger func(string, ...interface{})
}

// NewPowerController requests the power-key line as output, initially low.
func NewPowerController(chip string, line int, logger func(string, ...interface{})) (*PowerController, error) {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	l, err := gpiocdev.RequestLine(chip, line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("sms-gateway-power"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request power GPIO line")
	}

	pc := &PowerController{line: l, logger: logger}
	pc.log("power controller initialized (chip=%s, line=%d)", chip, line)
	return pc, nil
}

// Close releases the line.
func (pc *PowerController) Close() error {
	if pc.line == nil {
		return nil
	}
	err := pc.line.Close()
	pc.line = nil
	return err
}

// PowerOn pulses the power key and waits for the module to boot.
func (pc *PowerController) PowerOn() error {
	if pc.line == nil {
		return errors.New("GPIO not initialized")
	}

	pc.log("sending power ON pulse (%dms)...", PowerOnPulseMS)

	if err := pc.line.SetValue(1); err != nil {
		return errors.Wrap(err, "failed to set GPIO high")
	}
	time.Sleep(PowerOnPulseMS * time.Millisecond)
	if err := pc.line.SetValue(0); err != nil {
		return errors.Wrap(err, "failed to set GPIO low")
	}

	pc.log("power ON pulse complete, waiting %dms for module boot", PowerOnWaitMS)
	time.Sleep(PowerOnWaitMS * time.Millisecond)
	return nil
}

func (pc *PowerController) log(format string, args ...interface{}) {
	pc.logger("[GPIO] "+format, args...)
}
