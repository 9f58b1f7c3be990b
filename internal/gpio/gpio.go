// Package gpio drives the two heating-element outputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation records writes for tests.
package gpio

// Writer drives the element outputs.
type Writer interface {
	// Write sets the low-wattage and high-wattage element lines.
	// true energises the element.
	Write(low, high bool) error

	// Close switches both elements off and releases the lines.
	Close() error
}

// Pin defaults (BCM numbering)
const (
	PinLow  = 6  // low-wattage element
	PinHigh = 10 // high-wattage element
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

func bit(on bool) int {
	if on {
		return 1
	}
	return 0
}
