// Package battery reads the pack voltage through the ADC exposed in sysfs.
// The cell sits behind a resistor divider, so the raw reading is scaled
// back up before reporting.
package battery

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Monitor reads and scales the battery voltage.
type Monitor struct {
	voltagePath string
	scaleMV     int // raw ADC units per millivolt at the pin
	dividerR1   int
	dividerR2   int
	lowMV       int
}

// NewMonitor creates a Monitor. scaleMV converts raw readings to millivolts
// at the ADC pin; the divider ratio recovers the pack voltage.
func NewMonitor(voltagePath string, scaleMV, dividerR1, dividerR2, lowMV int) *Monitor {
	if scaleMV <= 0 {
		scaleMV = 1
	}
	return &Monitor{
		voltagePath: voltagePath,
		scaleMV:     scaleMV,
		dividerR1:   dividerR1,
		dividerR2:   dividerR2,
		lowMV:       lowMV,
	}
}

// Millivolts returns the pack voltage.
func (m *Monitor) Millivolts() (int, error) {
	data, err := os.ReadFile(m.voltagePath)
	if err != nil {
		return 0, fmt.Errorf("cannot read ADC: %v", err)
	}

	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("bad ADC reading %q: %v", strings.TrimSpace(string(data)), err)
	}

	pinMV := raw / m.scaleMV
	if m.dividerR2 == 0 {
		return pinMV, nil
	}
	return pinMV * (m.dividerR1 + m.dividerR2) / m.dividerR2, nil
}

// Low reports whether the last reading is under the low-battery threshold.
func (m *Monitor) Low() (bool, error) {
	mv, err := m.Millivolts()
	if err != nil {
		return false, err
	}
	return mv < m.lowMV, nil
}
