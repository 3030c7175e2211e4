package audio

import "encoding/binary"

// Convert returns p resampled to sampleRate and mixed to channels (1 or 2)
// using linear interpolation.
func Convert(p PCM, sampleRate, channels int) PCM {
	if p.SampleRate == sampleRate && p.Channels == channels {
		return p
	}

	in := frames(p)
	if p.SampleRate != sampleRate && len(in) > 0 {
		ratio := float64(sampleRate) / float64(p.SampleRate)
		outLen := int(float64(len(in)) * ratio)
		out := make([][]int16, outLen)
		for i := range out {
			pos := float64(i) / ratio
			idx := int(pos)
			if idx >= len(in)-1 {
				out[i] = in[len(in)-1]
				continue
			}
			frac := pos - float64(idx)
			a, b := in[idx], in[idx+1]
			f := make([]int16, len(a))
			for ch := range a {
				f[ch] = int16(float64(a[ch])*(1-frac) + float64(b[ch])*frac)
			}
			out[i] = f
		}
		in = out
	}

	data := make([]byte, 0, len(in)*channels*BytesPerSample)
	for _, f := range in {
		for _, s := range mix(f, channels) {
			data = binary.LittleEndian.AppendUint16(data, uint16(s))
		}
	}
	return PCM{Data: data, SampleRate: sampleRate, Channels: channels}
}

func frames(p PCM) [][]int16 {
	size := p.FrameSize()
	if size == 0 {
		return nil
	}
	out := make([][]int16, 0, len(p.Data)/size)
	for off := 0; off+size <= len(p.Data); off += size {
		f := make([]int16, p.Channels)
		for ch := range f {
			f[ch] = int16(binary.LittleEndian.Uint16(p.Data[off+ch*BytesPerSample:]))
		}
		out = append(out, f)
	}
	return out
}

func mix(f []int16, channels int) []int16 {
	if len(f) == channels {
		return f
	}
	v := f[0]
	if len(f) > 1 {
		var sum int
		for _, s := range f {
			sum += int(s)
		}
		v = int16(sum / len(f))
	}
	out := make([]int16, channels)
	for i := range out {
		out[i] = v
	}
	return out
}
