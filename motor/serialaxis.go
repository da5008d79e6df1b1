package motor

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
	"github.com/tarm/serial"
)

const (
	serialBaud = 115200
	// serialStale is how long a position report stays valid.
	serialStale = 2 * time.Second
)

// SerialAxis drives a stepper controller over a serial line. The
// controller streams position reports of the form "p<axis> <steps>";
// targets are written as "t<axis> <steps> <velocity>". The connection
// is retried forever in the background; commands while disconnected
// return an error.
type SerialAxis struct {
	device  string
	hubPort int

	mu       sync.Mutex
	s        *serial.Port
	lastCmd  mount.AxisCommand
	hasCmd   bool
	position int64
	lastSeen time.Time
}

func NewSerialAxis(device string, hubPort int) *SerialAxis {
	return &SerialAxis{device: device, hubPort: hubPort}
}

func (a *SerialAxis) Connect(ctx context.Context) error {
	go a.reconnectLoop(ctx)
	return nil
}

func (a *SerialAxis) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s != nil {
		return a.s.Close()
	}
	return nil
}

func (a *SerialAxis) reconnectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		c := &serial.Config{Name: a.device, Baud: serialBaud}
		s, err := serial.OpenPort(c)
		if err != nil {
			log.Printf("opening %q: %v", a.device, err)
			continue
		}
		log.Printf("opened %q", a.device)
		a.mu.Lock()
		a.s = s
		a.hasCmd = false
		a.mu.Unlock()
		a.watch()
		a.mu.Lock()
		a.s = nil
		a.mu.Unlock()
	}
}

func (a *SerialAxis) watch() {
	defer a.s.Close()
	scanner := bufio.NewScanner(a.s)
	for scanner.Scan() {
		input := scanner.Text()
		if len(input) < 1 {
			continue
		}
		switch input[0] {
		case '!':
			log.Printf("%s", input)
		case 'p':
			fields := strings.Fields(input[1:])
			if len(fields) != 2 {
				log.Printf("malformed position report %q", input)
				continue
			}
			port, err1 := strconv.Atoi(fields[0])
			steps, err2 := strconv.ParseInt(fields[1], 10, 64)
			if err1 != nil || err2 != nil {
				log.Printf("failed to parse %q", input)
				continue
			}
			if port != a.hubPort {
				continue
			}
			a.mu.Lock()
			a.position = steps
			a.lastSeen = time.Now()
			a.mu.Unlock()
		default:
			log.Printf("unknown input: %s", input)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading serial port: %v", err)
	}
}

func (a *SerialAxis) SetTarget(cmd mount.AxisCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s == nil {
		return fmt.Errorf("%q not connected", a.device)
	}
	if a.hasCmd && cmd == a.lastCmd {
		return nil
	}
	out := fmt.Sprintf("t%d %d %.3f\n", a.hubPort, cmd.Steps, cmd.Velocity)
	if _, err := a.s.Write([]byte(out)); err != nil {
		return err
	}
	a.lastCmd = cmd
	a.hasCmd = true
	return nil
}

func (a *SerialAxis) Position() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s == nil {
		return 0, fmt.Errorf("%q not connected", a.device)
	}
	if time.Since(a.lastSeen) > serialStale {
		return 0, fmt.Errorf("no position report from %q in %v", a.device, serialStale)
	}
	return a.position, nil
}

func init() {
	Register("serial", func(p Params) (mount.Axis, error) {
		if p.Device == "" {
			return nil, fmt.Errorf("serial driver requires a device")
		}
		return NewSerialAxis(p.Device, p.HubPort), nil
	})
}
