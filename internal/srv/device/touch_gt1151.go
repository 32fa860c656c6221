package device

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// GT1151 status register: bit 7 is set once a frame is ready, the low nibble holds the
// number of touch points.
const (
	gt1151StatusRegHigh = 0x81
	gt1151StatusRegLow  = 0x4E
	gt1151BufferReady   = 0x80
)

// GT1151Touch polls a Goodix GT1151 controller over I²C. Presence of at least one touch
// point is a touch.
type GT1151Touch struct {
	bus     i2c.BusCloser
	dev     *i2c.Dev
	touched bool
}

func NewGT1151Touch(busName string, addr uint16) (*GT1151Touch, error) {
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("unable to open i2c bus: %w", err)
	}
	return &GT1151Touch{
		bus: bus,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
	}, nil
}

// Touched reports a touch on the first frame where a point appears. A finger kept on the
// panel is a single touch.
func (d *GT1151Touch) Touched() bool {
	status := make([]byte, 1)
	if err := d.dev.Tx([]byte{gt1151StatusRegHigh, gt1151StatusRegLow}, status); err != nil {
		logrus.Debugf("GT1151 read error: %v", err)
		return false
	}
	if status[0]&gt1151BufferReady == 0 {
		return false
	}
	if err := d.dev.Tx([]byte{gt1151StatusRegHigh, gt1151StatusRegLow, 0}, nil); err != nil {
		logrus.Debugf("GT1151 clear error: %v", err)
	}

	points := status[0] & 0x0F
	wasTouched := d.touched
	d.touched = points > 0
	return d.touched && !wasTouched
}

func (d *GT1151Touch) Close() error {
	return d.bus.Close()
}
