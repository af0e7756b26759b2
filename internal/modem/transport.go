// Package modem talks the AT text protocol to the SIM module over a serial
// line. The Transport interface is the seam for tests; SerialTransport is
// the hardware implementation.
package modem

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Transport sends one command line and accumulates the response until a
// terminating token ("OK"/"ERROR") or the timeout, whichever comes first.
type Transport interface {
	Exchange(command string, timeout time.Duration) (string, error)
	Close() error
}

// readChunkInterval paces the poll reads while waiting for response bytes.
const readChunkInterval = 10 * time.Millisecond

// SerialTransport is a raw serial port in non-canonical mode.
type SerialTransport struct {
	file *os.File
	log  func(string, ...interface{})
}

// OpenSerial opens device and configures it raw at the given baud rate.
func OpenSerial(device string, baud int, logger func(string, ...interface{})) (*SerialTransport, error) {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	file, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", device)
	}

	if err := configureTTY(file, baud); err != nil {
		file.Close()
		return nil, err
	}

	// Drop O_NONBLOCK now that the port is configured; VMIN=0/VTIME=1
	// gives bounded blocking reads instead.
	if err := unix.SetNonblock(int(file.Fd()), false); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "failed to clear nonblocking mode")
	}

	return &SerialTransport{file: file, log: logger}, nil
}

// Exchange writes the command line and reads until OK, ERROR or timeout.
// The accumulated response (echo included) is returned even on timeout so
// callers can salvage partial output.
func (t *SerialTransport) Exchange(command string, timeout time.Duration) (string, error) {
	t.log("[AT] >> %s", command)

	if _, err := t.file.WriteString(command + "\r\n"); err != nil {
		return "", errors.Wrapf(err, "failed to send %q", command)
	}

	var response strings.Builder
	buf := make([]byte, 256)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		n, err := t.file.Read(buf)
		if n > 0 {
			response.Write(buf[:n])
			resp := response.String()
			if strings.Contains(resp, "OK") || strings.Contains(resp, "ERROR") {
				break
			}
			continue
		}
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			return response.String(), errors.Wrap(err, "serial read failed")
		}
		time.Sleep(readChunkInterval)
	}

	resp := response.String()
	t.log("[AT] << %s", strings.TrimSpace(resp))
	return resp, nil
}

// Close closes the serial port.
func (t *SerialTransport) Close() error {
	return t.file.Close()
}

func configureTTY(file *os.File, baud int) error {
	fd := int(file.Fd())

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return errors.Wrap(err, "failed to read termios")
	}

	speed, err := baudFlag(baud)
	if err != nil {
		return err
	}

	// Raw 8N1, no flow control, receiver on.
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// VMIN=0, VTIME=1: read returns whatever is available within 100ms.
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 1

	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= speed
	tio.Ispeed = speed
	tio.Ospeed = speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return errors.Wrap(err, "failed to apply termios")
	}

	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}

func baudFlag(baud int) (uint32, error) {
	switch baud {
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, errors.Errorf("unsupported baud rate: %d", baud)
	}
}
