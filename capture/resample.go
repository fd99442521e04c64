package capture

// Resample converts mono PCM samples from one rate to another using
// linear interpolation. Good enough for speech handed to the engine;
// anything fancier belongs in the engine itself.
func Resample(in []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}

	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)

	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		a := float64(in[j])
		b := float64(in[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
