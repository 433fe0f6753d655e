// Package servo implements the closed loop BLDC controller: current
// and voltage sampling, the FOC current loop, the outer position and
// velocity loops, the mode state machine and the safety latches, all
// driven from the PWM synchronized interrupt.
package servo

// Fault enumerates every error the controller can latch or report.
// The numeric values are part of the wire protocol and the persisted
// telemetry format.
type Fault uint8

const (
	FaultNone Fault = 0

	FaultDmaStreamTransfer Fault = 1
	FaultDmaStreamFifo     Fault = 2
	FaultUartOverrun       Fault = 3
	FaultUartFraming       Fault = 4
	FaultUartNoise         Fault = 5
	FaultUartBufferOverrun Fault = 6
	FaultUartParity        Fault = 7

	FaultCalibration        Fault = 32
	FaultMotorDriver        Fault = 33
	FaultOverVoltage        Fault = 34
	FaultEncoder            Fault = 35
	FaultMotorNotConfigured Fault = 36
	FaultPwmCycleOverrun    Fault = 37
	FaultOverTemperature    Fault = 38
	FaultStartOutsideLimit  Fault = 39
	FaultUnderVoltage       Fault = 40
	FaultConfigChanged      Fault = 41
	FaultThetaInvalid       Fault = 42
	FaultPositionInvalid    Fault = 43
	FaultDriverEnable       Fault = 44
	FaultTimingViolation    Fault = 46
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "success"
	case FaultDmaStreamTransfer:
		return "dma stream transfer error"
	case FaultDmaStreamFifo:
		return "dma stream fifo error"
	case FaultUartOverrun:
		return "uart overrun"
	case FaultUartFraming:
		return "uart framing error"
	case FaultUartNoise:
		return "uart noise error"
	case FaultUartBufferOverrun:
		return "uart buffer overrun"
	case FaultUartParity:
		return "uart parity error"
	case FaultCalibration:
		return "calibration fault"
	case FaultMotorDriver:
		return "motor driver fault"
	case FaultOverVoltage:
		return "over voltage"
	case FaultEncoder:
		return "encoder fault"
	case FaultMotorNotConfigured:
		return "motor not configured"
	case FaultPwmCycleOverrun:
		return "pwm cycle overrun"
	case FaultOverTemperature:
		return "over temperature"
	case FaultStartOutsideLimit:
		return "start outside limit"
	case FaultUnderVoltage:
		return "under voltage"
	case FaultConfigChanged:
		return "config changed"
	case FaultThetaInvalid:
		return "theta invalid"
	case FaultPositionInvalid:
		return "position invalid"
	case FaultDriverEnable:
		return "driver enable fault"
	case FaultTimingViolation:
		return "timing violation"
	}
	return "unknown"
}
