package control

// RotateVector applies the small-angle rotation gyro*dt to v, one axis at a time
// (x, then y, then z). Each pair update uses the already-updated first component,
// which keeps the step area preserving. Only valid for small per-step angles.
func RotateVector(v *[NumAxes]float64, gyro [NumAxes]float64, dt float64) {
	// about x
	v[Pitch] -= v[Yaw] * gyro[Roll] * dt
	v[Yaw] += v[Pitch] * gyro[Roll] * dt

	// about y
	v[Yaw] -= v[Roll] * gyro[Pitch] * dt
	v[Roll] += v[Yaw] * gyro[Pitch] * dt

	// about z
	v[Roll] -= v[Pitch] * gyro[Yaw] * dt
	v[Pitch] += v[Roll] * gyro[Yaw] * dt
}

// RotateIntegral rotates the three-axis integral vector by the body rotation measured over
// dt so integral built up before an attitude change keeps acting in the same earth-frame
// direction. It runs at the attitude update rate, independent of Evaluate.
// The result is not clamped: an axis with a smaller integral_limit can briefly hold more
// than its limit after a transfer, and the next Evaluate of that axis clamps it.
func (c *RateController) RotateIntegral(gyro [NumAxes]float64, dt float64) {
	var v [NumAxes]float64
	for _, a := range Axes {
		v[a] = c.axes[a].integral
	}
	RotateVector(&v, gyro, dt)
	for _, a := range Axes {
		c.axes[a].integral = v[a]
	}
}
