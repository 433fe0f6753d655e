//go:build rp2040

package main

// External MCP2515 CAN controller on SPI0. Classic CAN limits frames
// to 8 payload bytes, so bus traffic through this path uses short
// register subframes; the full 64-byte frames ride the USB serial
// bridge instead.

import (
	"machine"

	"tinygo.org/x/drivers/mcp2515"

	"goservo/server"
)

type canPort struct {
	dev  *mcp2515.Device
	self uint8
}

func newCANPort(self uint8) (*canPort, error) {
	spi := machine.SPI0
	err := spi.Configure(machine.SPIConfig{
		Frequency: 8_000_000,
		SCK:       machine.GPIO18,
		SDO:       machine.GPIO19,
		SDI:       machine.GPIO16,
	})
	if err != nil {
		return nil, err
	}
	dev := mcp2515.New(spi, machine.GPIO17)
	dev.Configure()
	if err := dev.Begin(mcp2515.CAN500kBps, mcp2515.Clock8MHz); err != nil {
		return nil, err
	}
	return &canPort{dev: dev, self: self}, nil
}

// poll services received frames against the register server.
func (c *canPort) poll(front *server.Server) {
	for c.dev.Received() {
		msg, err := c.dev.Rx()
		if err != nil {
			return
		}
		_, src, dst := parseID(msg.ID)
		if dst != c.self {
			continue
		}
		if reply := front.ProcessFrame(msg.Data[:msg.Dlc]); reply != nil {
			// Classic CAN: clip the reply to one frame.
			if len(reply) > 8 {
				reply = reply[:8]
			}
			c.dev.Tx(buildID(c.self, src), uint8(len(reply)), reply)
		}
	}
}

func parseID(id uint32) (prefix uint16, src, dst uint8) {
	// 11-bit identifiers: 3 bits source, 8 bits destination.
	return 0, uint8(id >> 8 & 0x07), uint8(id)
}

func buildID(src, dst uint8) uint32 {
	return uint32(src&0x07)<<8 | uint32(dst)
}
