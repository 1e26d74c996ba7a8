// Package mic captures PCM16 audio from the default input device.
package mic

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/gordonklaus/portaudio"

	"github.com/sjawhar/live-scribe/internal/audio"
)

// Init and Terminate bracket all PortAudio use in the process.
func Init() error { return portaudio.Initialize() }
func Terminate()  { _ = portaudio.Terminate() }

// Mic is the default input device opened as mono PCM16.
type Mic struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
}

// New opens a capture stream with the given sample rate and buffer size
// (in frames).
func New(sampleRate, framesPerBuffer int) (*Mic, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf, sampleRate: sampleRate}, nil
}

func (m *Mic) SampleRate() int { return m.sampleRate }
func (m *Mic) Start() error    { return m.stream.Start() }
func (m *Mic) Stop() error     { return m.stream.Stop() }
func (m *Mic) Close() error    { return m.stream.Close() }

// Stream reads from the mic and writes PCM16-LE to w until an error or stop.
func (m *Mic) Stream(w io.Writer) error {
	var out bytes.Buffer
	out.Grow(len(m.buf) * 2)
	for {
		if err := m.stream.Read(); err != nil {
			return err
		}
		out.Reset()
		if err := binary.Write(&out, binary.LittleEndian, m.buf); err != nil {
			return err
		}
		if _, err := w.Write(out.Bytes()); err != nil {
			return err
		}
	}
}
