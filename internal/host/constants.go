package host

import (
	"time"

	"github.com/tphakala/tempoloop"
)

// WAV sample scaling
const (
	maxInt8  = 127.0
	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	// 8-bit WAV samples are unsigned and centred on 128.
	uint8Offset = 128

	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32

	// wavFormatFloat is the WAVE_FORMAT_IEEE_FLOAT tag.
	wavFormatFloat = 3
)

// MIMETypeWAV is reported in the metadata of decoded files.
const MIMETypeWAV = "audio/wav"

// Source settings
const (
	// resampleQuality is the beep speed resampler quality (1-64).
	resampleQuality = 4

	// conversionQuality is the filter used to bring a track to the session rate.
	conversionQuality = tempoloop.QualityHigh

	// scratchFrames bounds the frames pulled from the resampler per pass.
	scratchFrames = 4096

	stereoChannels = 2
)

// DefaultSpeakerBuffer is the device buffer length used by the speaker sink.
const DefaultSpeakerBuffer = 100 * time.Millisecond
