package motor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/altazimuth/lx200bridge/internal/modbus"
	"github.com/altazimuth/lx200bridge/mount"
)

const (
	// Each axis occupies a bank of registers selected by the hub port.
	modbusBankSize = 4
	modbusPollWait = 100 * time.Millisecond
	modbusStale    = 2 * time.Second
)

// ModbusAxis drives a stepper controller over modbus RTU. Holding
// registers hold the commanded step target as a 32-bit value followed
// by the velocity; the matching input registers report the measured
// step position.
type ModbusAxis struct {
	client *modbus.Client
	base   uint16

	// io serializes bus transactions between the poll loop and
	// SetTarget.
	io sync.Mutex

	mu       sync.Mutex
	lastCmd  mount.AxisCommand
	hasCmd   bool
	position int64
	lastSeen time.Time
}

func NewModbusAxis(device string, hubPort int) *ModbusAxis {
	a := &ModbusAxis{
		base: uint16(hubPort * modbusBankSize),
	}
	a.client = &modbus.Client{
		Port:    device,
		SlaveId: 1,
		Poll:    a.poll,
	}
	return a
}

func (a *ModbusAxis) Connect(ctx context.Context) error {
	return a.client.Connect(ctx)
}

func (a *ModbusAxis) Disconnect() error {
	return nil
}

func (a *ModbusAxis) poll() error {
	a.io.Lock()
	data, err := a.client.ReadInputRegisters(a.base, 2)
	a.io.Unlock()
	if err != nil {
		return err
	}
	if len(data) != 4 {
		return fmt.Errorf("short register read: %d bytes", len(data))
	}
	a.mu.Lock()
	a.position = int64(int32(binary.BigEndian.Uint32(data)))
	a.lastSeen = time.Now()
	a.mu.Unlock()
	time.Sleep(modbusPollWait)
	return nil
}

func (a *ModbusAxis) SetTarget(cmd mount.AxisCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client.Client == nil {
		return fmt.Errorf("%q not connected", a.client.Port)
	}
	if a.hasCmd && cmd == a.lastCmd {
		return nil
	}
	if cmd.Steps > 1<<31-1 || cmd.Steps < -(1<<31) {
		return fmt.Errorf("step target %d out of range", cmd.Steps)
	}
	var buf [6]byte
	binary.BigEndian.PutUint32(buf[0:], uint32(int32(cmd.Steps)))
	binary.BigEndian.PutUint16(buf[4:], uint16(cmd.Velocity))
	a.io.Lock()
	_, err := a.client.WriteMultipleRegisters(a.base, 3, buf[:])
	a.io.Unlock()
	if err != nil {
		return err
	}
	a.lastCmd = cmd
	a.hasCmd = true
	return nil
}

func (a *ModbusAxis) Position() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastSeen) > modbusStale {
		return 0, fmt.Errorf("no position read from %q in %v", a.client.Port, modbusStale)
	}
	return a.position, nil
}

func init() {
	Register("modbus", func(p Params) (mount.Axis, error) {
		if p.Device == "" {
			return nil, fmt.Errorf("modbus driver requires a device")
		}
		return NewModbusAxis(p.Device, p.HubPort), nil
	})
}
