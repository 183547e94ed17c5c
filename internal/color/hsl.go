package color

import "math"

// FromHSL converts hue (degrees), saturation and lightness (0..1) to RGB channels.
// Channels are floored, so full lightness never reaches 256.
func FromHSL(hue, sat, light float64) (r, g, b int) {
	h := math.Mod(hue, 360) / 360
	if h < 0 {
		h++
	}

	var rf, gf, bf float64
	if sat == 0 {
		rf, gf, bf = light, light, light
	} else {
		var q float64
		if light < 0.5 {
			q = light * (1 + sat)
		} else {
			q = light + sat - light*sat
		}
		p := 2*light - q
		rf = hueToChannel(p, q, h+1.0/3)
		gf = hueToChannel(p, q, h)
		bf = hueToChannel(p, q, h-1.0/3)
	}

	return clamp(int(math.Floor(rf*MaxChannel)), MaxChannel),
		clamp(int(math.Floor(gf*MaxChannel)), MaxChannel),
		clamp(int(math.Floor(bf*MaxChannel)), MaxChannel)
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
