package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
)

const (
	DefaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
	wavHeaderSize     = 44
)

// WrapPCM prefixes mono PCM16-LE samples with a WAV header.
func WrapPCM(pcm []byte, sampleRate int) ([]byte, error) {
	header, err := wavHeader(len(pcm), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return nil, err
	}
	return append(header, pcm...), nil
}

type wavFormat struct {
	channels   int
	sampleRate int
	bitDepth   int
}

func parseWAVHeader(b []byte) (wavFormat, bool) {
	if len(b) < wavHeaderSize || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return wavFormat{}, false
	}
	return wavFormat{
		channels:   int(binary.LittleEndian.Uint16(b[22:24])),
		sampleRate: int(binary.LittleEndian.Uint32(b[24:28])),
		bitDepth:   int(binary.LittleEndian.Uint16(b[34:36])),
	}, true
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 || bitDepth <= 0 {
		return nil, errors.New("invalid wav format")
	}
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	buf.WriteString("RIFF")
	if err := binary.Write(buf, binary.LittleEndian, uint32(36+dataSize)); err != nil {
		return nil, err
	}
	buf.WriteString("WAVEfmt ")
	fmtChunk := []any{
		uint32(16),
		uint16(1),
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
	}
	for _, v := range fmtChunk {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString("data")
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Chunker collects PCM written to it and hands out a WAV-wrapped chunk each
// time size bytes have accumulated. Flush emits whatever is left.
type Chunker struct {
	size       int
	sampleRate int
	emit       func([]byte) error

	mu  sync.Mutex
	buf []byte
}

func NewChunker(sampleRate, size int, emit func([]byte) error) *Chunker {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Chunker{size: size, sampleRate: sampleRate, emit: emit}
}

func (c *Chunker) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = append(c.buf, p...)
	for c.size > 0 && len(c.buf) >= c.size {
		if err := c.send(c.buf[:c.size]); err != nil {
			return len(p), err
		}
		c.buf = append(c.buf[:0], c.buf[c.size:]...)
	}
	return len(p), nil
}

func (c *Chunker) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil
	}
	err := c.send(c.buf)
	c.buf = c.buf[:0]
	return err
}

func (c *Chunker) send(pcm []byte) error {
	chunk, err := WrapPCM(pcm, c.sampleRate)
	if err != nil {
		return err
	}
	return c.emit(chunk)
}
