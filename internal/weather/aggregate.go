package weather

// Mean returns the arithmetic mean of the readings' temperatures. Every
// reading weighs the same regardless of provider. ok is false when readings
// is empty.
func Mean(readings []Reading) (mean float64, ok bool) {
	if len(readings) == 0 {
		return 0, false
	}
	var sum float64
	for _, r := range readings {
		sum += r.Temperature
	}
	return sum / float64(len(readings)), true
}

// Names lists the providers that contributed readings, in order.
func Names(readings []Reading) []string {
	out := make([]string, 0, len(readings))
	for _, r := range readings {
		out = append(out, r.Provider)
	}
	return out
}
