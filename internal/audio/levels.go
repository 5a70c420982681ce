package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
)

// SilenceFloor is reported for digital silence.
const SilenceFloor = -160.0

const fullScale = 32768.0

// ComputeLevel returns the RMS and peak level of 16 bit samples.
func ComputeLevel(samples []int16) Level {
	if len(samples) == 0 {
		return Level{Average: SilenceFloor, Peak: SilenceFloor}
	}
	var sum, peak float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return Level{Average: toDBFS(rms / fullScale), Peak: toDBFS(peak / fullScale)}
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceFloor
	}
	return math.Max(20*math.Log10(amplitude), SilenceFloor)
}

// meterPCM reads little endian 16 bit mono samples from r and calls sink
// once per frame of n samples. Raw bytes are copied to tee when set. A
// trailing partial frame is not metered.
func meterPCM(r io.Reader, n int, tee io.Writer, sink func(Level)) error {
	buf := make([]byte, 2*n)
	samples := make([]int16, n)
	for {
		read, err := io.ReadFull(r, buf)
		if read > 0 && tee != nil {
			if _, werr := tee.Write(buf[:read]); werr != nil {
				return werr
			}
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return err
		}
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
		}
		sink(ComputeLevel(samples))
	}
}

// wavWriter writes a mono 16 bit PCM WAV file. Sizes in the header are
// patched on Close.
type wavWriter struct {
	f     *os.File
	bytes uint32
}

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func createWAV(path string, sampleRate int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
	}
	if err := binary.Write(f, binary.LittleEndian, h); err != nil {
		f.Close()
		return nil, err
	}
	return &wavWriter{f: f}, nil
}

func (w *wavWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.bytes += uint32(n)
	return n, err
}

func (w *wavWriter) Path() string { return w.f.Name() }

func (w *wavWriter) Close() error {
	if _, err := w.f.WriteAt(binary.LittleEndian.AppendUint32(nil, 36+w.bytes), 4); err != nil {
		w.f.Close()
		return err
	}
	if _, err := w.f.WriteAt(binary.LittleEndian.AppendUint32(nil, w.bytes), 40); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
