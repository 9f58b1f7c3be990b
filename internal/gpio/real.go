//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives element relays through the Linux GPIO character device.
type RealWriter struct {
	chip     *gpiocdev.Chip
	lowLine  *gpiocdev.Line
	highLine *gpiocdev.Line
}

// NewRealWriter requests both lines as outputs, initially off.
func NewRealWriter(chipName string, pinLow, pinHigh int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("heater-controller"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	lowLine, err := chip.RequestLine(pinLow, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request low pin %d: %w", pinLow, err)
	}

	highLine, err := chip.RequestLine(pinHigh, gpiocdev.AsOutput(0))
	if err != nil {
		lowLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request high pin %d: %w", pinHigh, err)
	}

	return &RealWriter{
		chip:     chip,
		lowLine:  lowLine,
		highLine: highLine,
	}, nil
}

// Write sets both element lines.
func (w *RealWriter) Write(low, high bool) error {
	if err := w.lowLine.SetValue(bit(low)); err != nil {
		return fmt.Errorf("set low pin: %w", err)
	}
	if err := w.highLine.SetValue(bit(high)); err != nil {
		return fmt.Errorf("set high pin: %w", err)
	}
	return nil
}

// Close drives both elements off, then reconfigures the pins to input with
// pull-down (the Pi boot default) so the relays stay released across a
// reboot.
func (w *RealWriter) Close() error {
	var errs []error

	lines := []struct {
		name string
		line *gpiocdev.Line
	}{{"low", w.lowLine}, {"high", w.highLine}}

	for _, l := range lines {
		name, line := l.name, l.line
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s pin off: %w", name, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
