package decoder

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/glebovdev/radio-cli/internal/audiotest"
)

func TestDetect(t *testing.T) {
	wavHead := audiotest.RampWAV(8000, 1)[:12]

	tests := []struct {
		name        string
		contentType string
		head        []byte
		expected    Codec
	}{
		{"id3 tag", "", []byte("ID3\x04\x00"), CodecMP3},
		{"mpeg1 layer3 sync", "", []byte{0xFF, 0xFB, 0x90, 0x64}, CodecMP3},
		{"adts aac sync", "", []byte{0xFF, 0xF1, 0x50, 0x80}, CodecUnknown},
		{"adts aac with mpeg content type", "audio/aac", []byte{0xFF, 0xF9, 0x50, 0x80}, CodecUnknown},
		{"riff wave", "", wavHead, CodecWAV},
		{"flac", "", []byte("fLaC\x00\x00\x00\x22"), CodecFLAC},
		{"ogg vorbis", "", []byte("OggS\x00\x02\x00\x00\x01vorbis"), CodecVorbis},
		{"ogg opus", "audio/ogg", []byte("OggS\x00\x02\x00\x00OpusHead"), CodecUnknown},
		{"magic beats header", "audio/mpeg", wavHead, CodecWAV},
		{"content type fallback", "audio/mpeg", []byte("????"), CodecMP3},
		{"content type with params", "audio/x-wav; codecs=1", []byte("????"), CodecWAV},
		{"content type case", "Audio/FLAC", nil, CodecFLAC},
		{"unknown", "text/html", []byte("<html>"), CodecUnknown},
		{"nothing", "", nil, CodecUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.contentType, tt.head); got != tt.expected {
				t.Errorf("Detect(%q, %x) = %v, want %v", tt.contentType, tt.head, got, tt.expected)
			}
		})
	}
}

func TestCodecString(t *testing.T) {
	tests := []struct {
		codec    Codec
		expected string
	}{
		{CodecMP3, "MP3"},
		{CodecWAV, "WAV"},
		{CodecVorbis, "Vorbis"},
		{CodecFLAC, "FLAC"},
		{CodecUnknown, "unknown"},
		{Codec(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.codec.String(); got != tt.expected {
			t.Errorf("Codec(%d).String() = %q, want %q", tt.codec, got, tt.expected)
		}
	}
}

func TestDecodeWAV(t *testing.T) {
	const frames = 10000
	dec, err := New(bytes.NewReader(audiotest.RampWAV(8000, frames)), "audio/wav", 1024)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer dec.Close()

	if dec.Codec() != CodecWAV {
		t.Errorf("Codec() = %v, want WAV", dec.Codec())
	}
	if dec.Format().SampleRate != 8000 || dec.Format().NumChannels != 2 {
		t.Errorf("Format() = %+v, want 8000 Hz stereo", dec.Format())
	}

	var (
		total   int
		lastSeq uint64
		last    = -1.0
	)
	for {
		block, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if block.Len() == 0 {
			continue
		}
		if block.Len() > 1024 {
			t.Fatalf("block of %d frames exceeds block size", block.Len())
		}
		if block.Seq != lastSeq+1 {
			t.Fatalf("block Seq = %d after %d", block.Seq, lastSeq)
		}
		lastSeq = block.Seq

		for _, s := range block.Samples {
			if s[0] <= last {
				t.Fatalf("sample %d: %v not greater than %v", total, s[0], last)
			}
			last = s[0]
			total++
		}
	}

	if total != frames {
		t.Errorf("decoded %d frames, want %d", total, frames)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

// chunkReader returns at most n bytes per Read, like a slow network body.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

// decodeAll drains dec and returns the left channel of every frame.
func decodeAll(t *testing.T, dec *Decoder) []float64 {
	t.Helper()

	var out []float64
	for i := 0; ; i++ {
		if i > 1_000_000 {
			t.Fatal("Next() never reached io.EOF")
		}
		block, err := dec.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		for _, s := range block.Samples {
			out = append(out, s[0])
		}
	}
}

func TestDecodeWAVShortReads(t *testing.T) {
	const frames = 4000
	wav := audiotest.RampWAV(8000, frames)

	readers := []struct {
		name string
		r    func() io.Reader
	}{
		{"one byte", func() io.Reader { return iotest.OneByteReader(bytes.NewReader(wav)) }},
		{"three bytes", func() io.Reader { return &chunkReader{r: bytes.NewReader(wav), n: 3} }},
		{"odd chunks", func() io.Reader { return &chunkReader{r: bytes.NewReader(wav), n: 1021} }},
		{"data with eof", func() io.Reader { return iotest.DataErrReader(bytes.NewReader(wav)) }},
		{"half reads", func() io.Reader { return iotest.HalfReader(bytes.NewReader(wav)) }},
	}

	for _, tt := range readers {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := New(tt.r(), "", 512)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer dec.Close()

			samples := decodeAll(t, dec)
			if len(samples) != frames {
				t.Fatalf("decoded %d frames, want %d", len(samples), frames)
			}
			for i, v := range samples {
				if want := float64(i+1) / (1 << 15); v != want {
					t.Fatalf("frame %d = %v, want %v", i, v, want)
				}
			}
		})
	}
}

func TestDecodeTruncatedWAVData(t *testing.T) {
	// 749 whole frames and half of the next one; the header promises 1000.
	wav := audiotest.RampWAV(8000, 1000)
	wav = wav[:44+749*4+2]

	dec, err := New(&chunkReader{r: bytes.NewReader(wav), n: 7}, "audio/wav", 256)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer dec.Close()

	if got := len(decodeAll(t, dec)); got != 749 {
		t.Errorf("decoded %d frames, want 749", got)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestDecodeFiles(t *testing.T) {
	tests := []struct {
		file   string
		codec  Codec
		frames int // 0 when the codec pads the stream
	}{
		{"station.mp3", CodecMP3, 0},
		{"station.ogg", CodecVorbis, 22050},
		{"station.flac", CodecFLAC, 22050},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join("testdata", tt.file))
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}

			dec, err := New(bytes.NewReader(data), "", 0)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer dec.Close()

			if dec.Codec() != tt.codec {
				t.Errorf("Codec() = %v, want %v", dec.Codec(), tt.codec)
			}
			if dec.Format().SampleRate != 44100 {
				t.Errorf("Format().SampleRate = %d, want 44100", dec.Format().SampleRate)
			}

			whole := decodeAll(t, dec)
			if len(whole) == 0 {
				t.Fatal("decoded no frames")
			}
			if tt.frames > 0 && len(whole) != tt.frames {
				t.Errorf("decoded %d frames, want %d", len(whole), tt.frames)
			}

			chunked, err := New(&chunkReader{r: bytes.NewReader(data), n: 5}, "", 0)
			if err != nil {
				t.Fatalf("New() over short reads error = %v", err)
			}
			defer chunked.Close()

			if got := len(decodeAll(t, chunked)); got != len(whole) {
				t.Errorf("short reads decoded %d frames, want %d", got, len(whole))
			}
		})
	}
}

func TestBlocksAreCopies(t *testing.T) {
	dec, err := New(bytes.NewReader(audiotest.RampWAV(8000, 300)), "", 100)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer dec.Close()

	first, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	want := first.Samples[0]

	if _, err := dec.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if first.Samples[0] != want {
		t.Error("a later Next() overwrote an earlier block")
	}
}

func TestNewUnsupported(t *testing.T) {
	_, err := New(bytes.NewReader(audiotest.Noise(512)), "text/plain", 0)

	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("New() error = %v, want ErrUnsupportedFormat", err)
	}
	var de *Error
	if !errors.As(err, &de) || de.Codec != CodecUnknown {
		t.Errorf("New() error = %v, want *Error with unknown codec", err)
	}
}

func TestNewCorrupt(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{"garbage labelled wav", "audio/wav", audiotest.Noise(512)},
		{"truncated wav header", "", audiotest.RampWAV(8000, 10)[:20]},
		{"empty body", "audio/mpeg", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(bytes.NewReader(tt.data), tt.contentType, 0)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("New() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestNewPropagatesInputError(t *testing.T) {
	inputErr := errors.New("connection reset")
	_, err := New(&failingReader{err: inputErr}, "audio/mpeg", 0)

	if !errors.Is(err, inputErr) {
		t.Errorf("New() error = %v, want it to wrap the input error", err)
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("New() error = %v, want ErrCorrupt", err)
	}
}

func TestNextPropagatesCutConnection(t *testing.T) {
	wav := audiotest.RampWAV(8000, 1000)
	dec, err := New(&failingReader{data: wav[:44+400*4], err: io.ErrUnexpectedEOF}, "", 256)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer dec.Close()

	frames := 0
	for {
		block, err := dec.Next()
		if err == io.EOF {
			t.Fatal("Next() = io.EOF, want the connection error")
		}
		if err != nil {
			if !errors.Is(err, io.ErrUnexpectedEOF) || !errors.Is(err, ErrCorrupt) {
				t.Errorf("Next() error = %v, want ErrCorrupt wrapping io.ErrUnexpectedEOF", err)
			}
			break
		}
		frames += block.Len()
	}

	if frames != 400 {
		t.Errorf("decoded %d frames before the error, want 400", frames)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dec, err := New(bytes.NewReader(audiotest.RampWAV(8000, 10)), "", 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := dec.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := dec.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
