//go:build tinygo

package main

import (
	"machine"

	"goservo/encoder"
)

// encoderSPI adapts machine.SPI to the encoder package's 16-bit split
// transfer interface. The machine layer is synchronous, so the start
// half just records the word and the finish half runs the transfer;
// at the encoder clock rates involved the transaction still completes
// well inside the budget.
type encoderSPI struct {
	bus *machine.SPI
	cs  machine.Pin

	pendingTx uint16
	started   bool
}

func newEncoderSPI(bus *machine.SPI, cs machine.Pin) *encoderSPI {
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	err := bus.Configure(machine.SPIConfig{
		Frequency: 8_000_000,
		Mode:      1, // AS5047: CPOL=0 CPHA=1
	})
	if err != nil {
		panic("encoder spi")
	}
	return &encoderSPI{bus: bus, cs: cs}
}

func (s *encoderSPI) StartTransfer16(tx uint16) {
	s.pendingTx = tx
	s.started = true
}

func (s *encoderSPI) FinishTransfer16() uint16 {
	if !s.started {
		return 0
	}
	s.started = false
	return s.Transfer16(s.pendingTx)
}

func (s *encoderSPI) Transfer16(tx uint16) uint16 {
	s.cs.Low()
	hi, _ := s.bus.Transfer(byte(tx >> 8))
	lo, _ := s.bus.Transfer(byte(tx))
	s.cs.High()
	return uint16(hi)<<8 | uint16(lo)
}

// newOnboardAS5047 builds the on-board encoder source.
func newOnboardAS5047(spi *encoderSPI) *encoder.AS5047 {
	return encoder.NewAS5047(spi)
}
