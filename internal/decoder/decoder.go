// Package decoder turns a compressed audio byte stream into blocks of PCM frames.
package decoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBlockSize = 4096
	sniffBytes       = 64
	readerSize       = 32 * 1024
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrCorrupt           = errors.New("corrupt audio data")
)

// Codec identifies a container/codec pair the decoder can handle.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecMP3
	CodecWAV
	CodecVorbis
	CodecFLAC
)

func (c Codec) String() string {
	switch c {
	case CodecMP3:
		return "MP3"
	case CodecWAV:
		return "WAV"
	case CodecVorbis:
		return "Vorbis"
	case CodecFLAC:
		return "FLAC"
	default:
		return "unknown"
	}
}

// Error wraps both the failure class (ErrUnsupportedFormat or ErrCorrupt)
// and the underlying cause, so errors.Is matches either.
type Error struct {
	Codec Codec
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Codec, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Codec, e.Kind, e.Cause)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Block is one decoded chunk. Seq starts at 1 and increases by one per block.
type Block struct {
	Seq     uint64
	Samples [][2]float64
}

func (b Block) Len() int { return len(b.Samples) }

// Decoder pulls bytes from its input only when Next is called. It does not
// close the input; the caller owns it.
type Decoder struct {
	codec    Codec
	format   beep.Format
	streamer beep.StreamSeekCloser
	in       *fullReader
	buf      [][2]float64
	seq      uint64

	closeOnce sync.Once
	closeErr  error
}

var contentTypes = map[string]Codec{
	"audio/mpeg":      CodecMP3,
	"audio/mp3":       CodecMP3,
	"audio/mpeg3":     CodecMP3,
	"audio/x-mpeg":    CodecMP3,
	"audio/wav":       CodecWAV,
	"audio/wave":      CodecWAV,
	"audio/x-wav":     CodecWAV,
	"audio/vnd.wave":  CodecWAV,
	"audio/ogg":       CodecVorbis,
	"audio/vorbis":    CodecVorbis,
	"application/ogg": CodecVorbis,
	"audio/flac":      CodecFLAC,
	"audio/x-flac":    CodecFLAC,
}

// Detect picks a codec from the leading bytes, falling back to the
// Content-Type header when the bytes are inconclusive.
func Detect(contentType string, head []byte) Codec {
	switch {
	case bytes.HasPrefix(head, []byte("ID3")):
		return CodecMP3
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return CodecWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return CodecFLAC
	case bytes.HasPrefix(head, []byte("OggS")):
		if bytes.Contains(head, []byte("OpusHead")) {
			return CodecUnknown
		}
		return CodecVorbis
	case isMPEGAudioSync(head):
		return CodecMP3
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return contentTypes[strings.ToLower(mt)]
	}
	return CodecUnknown
}

// MPEG audio frame sync with a non-reserved layer. ADTS (AAC) shares the sync
// word but uses layer 0, so it is excluded.
func isMPEGAudioSync(head []byte) bool {
	if len(head) < 2 || head[0] != 0xFF || head[1]&0xE0 != 0xE0 {
		return false
	}
	layer := (head[1] >> 1) & 0x03
	version := (head[1] >> 3) & 0x03
	return layer != 0 && version != 1
}

// New sniffs the stream, initialises the matching codec and reads its header.
// blockSize is the maximum number of frames per Block.
func New(r io.Reader, contentType string, blockSize int) (*Decoder, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	br := bufio.NewReaderSize(r, readerSize)
	head, err := br.Peek(sniffBytes)
	if len(head) == 0 {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &Error{Codec: CodecUnknown, Kind: ErrCorrupt, Cause: err}
	}

	codec := Detect(contentType, head)
	log.Debug().Str("codec", codec.String()).Str("contentType", contentType).Msg("Detected stream format")

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	in := &fullReader{r: br}
	src := io.NopCloser(in)

	switch codec {
	case CodecMP3:
		streamer, format, err = mp3.Decode(src)
	case CodecWAV:
		streamer, format, err = wav.Decode(in)
	case CodecVorbis:
		streamer, format, err = vorbis.Decode(src)
	case CodecFLAC:
		streamer, format, err = flac.Decode(in)
	default:
		return nil, &Error{Codec: codec, Kind: ErrUnsupportedFormat, Cause: fmt.Errorf("content type %q", contentType)}
	}
	if err != nil {
		return nil, &Error{Codec: codec, Kind: ErrCorrupt, Cause: err}
	}
	if format.SampleRate <= 0 || format.NumChannels <= 0 {
		streamer.Close()
		return nil, &Error{Codec: codec, Kind: ErrCorrupt, Cause: fmt.Errorf("invalid format %+v", format)}
	}

	log.Debug().Msgf("Decoding %s: %d Hz, %d channels", codec, format.SampleRate, format.NumChannels)

	return &Decoder{
		codec:    codec,
		format:   format,
		streamer: streamer,
		in:       in,
		buf:      make([][2]float64, blockSize),
	}, nil
}

func (d *Decoder) Codec() Codec { return d.codec }

// Format is the native sample rate and channel layout of the stream.
func (d *Decoder) Format() beep.Format { return d.format }

// Next decodes up to one block. It returns io.EOF at a clean end of input and an
// *Error wrapping the input's error otherwise. A block of zero frames with a nil
// error means the codec consumed input without producing audio yet.
// Truncated WAV data ends with io.EOF once the input is exhausted.
func (d *Decoder) Next() (Block, error) {
	n, ok := d.streamer.Stream(d.buf)
	if n > 0 {
		d.seq++
		samples := make([][2]float64, n)
		copy(samples, d.buf[:n])
		return Block{Seq: d.seq, Samples: samples}, nil
	}
	if !ok {
		if err := d.streamer.Err(); err != nil {
			return Block{}, &Error{Codec: d.codec, Kind: ErrCorrupt, Cause: err}
		}
		return Block{}, io.EOF
	}
	if d.in.eof {
		return Block{}, io.EOF
	}
	return Block{}, nil
}

func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.streamer.Close()
	})
	return d.closeErr
}
