// Package stream decides how a media file should be delivered to a client:
// played directly, remuxed into HLS, or transcoded. The decision is a pure
// function over the file's probed tracks and the client's device profile.
package stream

// PlayMethod is the delivery mode chosen for a media file.
type PlayMethod string

// Play methods.
const (
	PlayMethodDirectPlay   PlayMethod = "DirectPlay"
	PlayMethodDirectStream PlayMethod = "DirectStream"
	PlayMethodTranscode    PlayMethod = "Transcode"
)

// TranscodeReason explains why direct playback was rejected.
type TranscodeReason string

// Transcode reasons.
const (
	ReasonContainerNotSupported       TranscodeReason = "ContainerNotSupported"
	ReasonVideoCodecNotSupported      TranscodeReason = "VideoCodecNotSupported"
	ReasonAudioCodecNotSupported      TranscodeReason = "AudioCodecNotSupported"
	ReasonVideoProfileNotSupported    TranscodeReason = "VideoProfileNotSupported"
	ReasonVideoLevelNotSupported      TranscodeReason = "VideoLevelNotSupported"
	ReasonVideoResolutionNotSupported TranscodeReason = "VideoResolutionNotSupported"
	ReasonVideoBitDepthNotSupported   TranscodeReason = "VideoBitDepthNotSupported"
	ReasonVideoBitrateNotSupported    TranscodeReason = "VideoBitrateNotSupported"
	ReasonVideoRangeNotSupported      TranscodeReason = "VideoRangeNotSupported"
	ReasonAudioChannelsNotSupported   TranscodeReason = "AudioChannelsNotSupported"
	ReasonAudioSampleRateNotSupported TranscodeReason = "AudioSampleRateNotSupported"
	ReasonAudioBitrateNotSupported    TranscodeReason = "AudioBitrateNotSupported"
	ReasonAudioTranscodeRequired      TranscodeReason = "AudioTranscodeRequired"
	ReasonDirectPlayError             TranscodeReason = "DirectPlayError"
	ReasonUnknownVideoStreamInfo      TranscodeReason = "UnknownVideoStreamInfo"
	ReasonUnknownAudioStreamInfo      TranscodeReason = "UnknownAudioStreamInfo"
)

// ProfileCondition constrains one track property.
type ProfileCondition struct {
	Condition  string `json:"Condition"` // LessThanEqual, Equals, EqualsAny, GreaterThanEqual
	Property   string `json:"Property"`  // VideoLevel, Width, AudioChannels, ...
	Value      string `json:"Value"`
	IsRequired bool   `json:"IsRequired"`
}

// DirectPlayProfile lists formats the client plays natively. Container and
// codec fields hold comma-separated lists.
type DirectPlayProfile struct {
	Type       string `json:"Type"` // Video or Audio
	Container  string `json:"Container"`
	VideoCodec string `json:"VideoCodec,omitempty"`
	AudioCodec string `json:"AudioCodec,omitempty"`
}

// CodecProfile applies conditions to a specific codec.
type CodecProfile struct {
	Type       string             `json:"Type"`
	Codec      string             `json:"Codec"`
	Conditions []ProfileCondition `json:"Conditions,omitempty"`
}

// SubtitleProfile declares a supported subtitle delivery.
type SubtitleProfile struct {
	Format string `json:"Format"`
	Method string `json:"Method"` // External, Embed, Encode
}

// DeviceProfile describes a client's playback capabilities.
type DeviceProfile struct {
	Name               string              `json:"Name,omitempty"`
	ID                 string              `json:"Id,omitempty"`
	DirectPlayProfiles []DirectPlayProfile `json:"DirectPlayProfiles,omitempty"`
	CodecProfiles      []CodecProfile      `json:"CodecProfiles,omitempty"`
	SubtitleProfiles   []SubtitleProfile   `json:"SubtitleProfiles,omitempty"`
}

// Resolution is a requested output size.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Options toggles which delivery modes the caller permits.
type Options struct {
	AllowDirectPlay     bool
	AllowDirectStream   bool
	AllowTranscode      bool
	RequestedResolution *Resolution
}

// TranscodeSettings parameterizes an encoder session.
type TranscodeSettings struct {
	VideoCodec   string `json:"VideoCodec,omitempty"`
	AudioCodec   string `json:"AudioCodec,omitempty"`
	VideoBitrate int64  `json:"VideoBitrate,omitempty"`
	AudioBitrate int64  `json:"AudioBitrate,omitempty"`
	MaxWidth     int    `json:"MaxWidth,omitempty"`
	MaxHeight    int    `json:"MaxHeight,omitempty"`
	IsRemuxOnly  bool   `json:"IsRemuxOnly"`
}

// MediaStream is one track in the client-facing stream listing. Indices are
// contiguous across video, audio, then subtitle tracks.
type MediaStream struct {
	Index         int      `json:"Index"`
	Type          string   `json:"Type"` // Video, Audio, Subtitle
	Codec         string   `json:"Codec,omitempty"`
	Width         *int     `json:"Width,omitempty"`
	Height        *int     `json:"Height,omitempty"`
	BitRate       *int64   `json:"BitRate,omitempty"`
	RealFrameRate *float64 `json:"RealFrameRate,omitempty"`
	Profile       *string  `json:"Profile,omitempty"`
	Level         *int     `json:"Level,omitempty"`
	PixelFormat   *string  `json:"PixelFormat,omitempty"`
	BitDepth      *int     `json:"BitDepth,omitempty"`
	Channels      *int     `json:"Channels,omitempty"`
	SampleRate    *int     `json:"SampleRate,omitempty"`
	Language      *string  `json:"Language,omitempty"`
	Title         *string  `json:"Title,omitempty"`
	IsDefault     bool     `json:"IsDefault,omitempty"`
	IsForced      bool     `json:"IsForced,omitempty"`
}

// AvailableResolution is one entry in the manual resolution picker.
type AvailableResolution struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Label      string `json:"label"`
	IsOriginal bool   `json:"is_original"`
}

// StreamInfo is the playback decision for one media file.
type StreamInfo struct {
	ID        string `json:"Id"`
	Path      string `json:"Path,omitempty"`
	Protocol  string `json:"Protocol"`
	Container string `json:"Container,omitempty"`
	VideoType string `json:"VideoType,omitempty"`

	PlayMethod       PlayMethod        `json:"PlayMethod"`
	TranscodeReasons []TranscodeReason `json:"TranscodeReasons"`
	IsRemuxOnly      bool              `json:"IsRemuxOnly"`

	DirectStreamURL string `json:"DirectStreamUrl,omitempty"`
	TranscodingURL  string `json:"TranscodingUrl,omitempty"`

	TranscodingContainer  string             `json:"TranscodingContainer,omitempty"`
	TranscodingVideoCodec string             `json:"TranscodingVideoCodec,omitempty"`
	TranscodingAudioCodec string             `json:"TranscodingAudioCodec,omitempty"`
	TranscodingType       string             `json:"TranscodingType,omitempty"` // full, remux, audio-only
	TranscodeSettings     *TranscodeSettings `json:"TranscodeSettings,omitempty"`

	MediaStreams         []MediaStream         `json:"MediaStreams"`
	AvailableResolutions []AvailableResolution `json:"AvailableResolutions,omitempty"`

	RunTimeTicks *int64 `json:"RunTimeTicks,omitempty"`
	Bitrate      *int64 `json:"Bitrate,omitempty"`
}
