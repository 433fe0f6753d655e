package foc

// VoltageClamp limits the (Vd, Vq) vector magnitude to maxV. When
// dPriority is set the D axis keeps its full request and only the Q
// axis is reduced, which is the behavior wanted while a torque limit
// is active. It reports whether any clamping happened so the current
// loops can suspend integration.
func VoltageClamp(vd, vq, maxV float32, dPriority bool) (outD, outQ float32, clamped bool) {
	mag := Sqrt(vd*vd + vq*vq)
	if mag <= maxV || mag == 0 {
		return vd, vq, false
	}
	if dPriority {
		d := Limit(vd, -maxV, maxV)
		remaining := Sqrt(maxV*maxV - d*d)
		return d, Limit(vq, -remaining, remaining), true
	}
	scale := maxV / mag
	return vd * scale, vq * scale, true
}

// SVPWM converts three phase voltages into PWM duties using min/max
// common mode injection, which centers the active vectors and extends
// the linear modulation range to busV/sqrt(3). Duties are clamped to
// [dMin, dMax] to keep the bootstrap supplies charged.
func SVPWM(va, vb, vc, busV, dMin, dMax float32) (da, db, dc float32) {
	if busV <= 0 {
		return 0, 0, 0
	}
	mn := va
	if vb < mn {
		mn = vb
	}
	if vc < mn {
		mn = vc
	}
	mx := va
	if vb > mx {
		mx = vb
	}
	if vc > mx {
		mx = vc
	}
	// Shift so the envelope is centered: after the shift the minimum
	// and maximum phase voltages sum to busV.
	shift := 0.5*busV - 0.5*(mn+mx)

	da = Limit((va+shift)/busV, dMin, dMax)
	db = Limit((vb+shift)/busV, dMin, dMax)
	dc = Limit((vc+shift)/busV, dMin, dMax)
	return da, db, dc
}
