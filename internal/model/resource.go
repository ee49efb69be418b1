package model

import (
	"strconv"
	"strings"
)

// Well-known resource attribute keys (spec §3 Resource).
const (
	AttrProtocolInfo     = "protocolInfo"
	AttrSize             = "size"
	AttrDuration         = "duration"
	AttrBitrate          = "bitrate"
	AttrSampleFrequency  = "sampleFrequency"
	AttrNrAudioChannels  = "nrAudioChannels"
	AttrResolution       = "resolution"
	AttrColorDepth       = "colorDepth"
)

// HandlerType identifies which metadata extractor produced a resource.
type HandlerType int

const (
	HandlerUnknown HandlerType = iota
	HandlerLibrary             // built-in extractors (the audio tag reader)
	HandlerExternalURL
	HandlerTranscode
)

// Resource is one entry in an Item's ordered resource list. Resource 0 is
// the primary, served by default (spec §3 Resource).
type Resource struct {
	HandlerType HandlerType
	Attributes  Dict
	Parameters  Dict
}

// NewResource returns a Resource with initialized (non-nil) dictionaries.
func NewResource(handlerType HandlerType) Resource {
	return Resource{HandlerType: handlerType, Attributes: Dict{}, Parameters: Dict{}}
}

// Clone returns a deep copy.
func (r Resource) Clone() Resource {
	return Resource{
		HandlerType: r.HandlerType,
		Attributes:  r.Attributes.Clone(),
		Parameters:  r.Parameters.Clone(),
	}
}

// Equal compares handler type and both dictionaries.
func (r Resource) Equal(o Resource) bool {
	return r.HandlerType == o.HandlerType && r.Attributes.Equal(o.Attributes) && r.Parameters.Equal(o.Parameters)
}

// Encode renders r as `handlerType '~' encoded_attrs '~' encoded_params`,
// the textual form stored in mt_cds_object.resources (spec §3 Resource).
func (r Resource) Encode() string {
	return strconv.Itoa(int(r.HandlerType)) + "~" + r.Attributes.Encode() + "~" + r.Parameters.Encode()
}

// DecodeResource parses the encoding produced by Resource.Encode.
// decode(encode(r)) ≡ r (spec §8 property 3).
func DecodeResource(s string) Resource {
	parts := strings.SplitN(s, "~", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	ht, _ := strconv.Atoi(parts[0])
	return Resource{
		HandlerType: HandlerType(ht),
		Attributes:  DecodeDict(parts[1]),
		Parameters:  DecodeDict(parts[2]),
	}
}

// EncodeResources joins a resource list with newlines, one encoded
// resource per line, preserving the order the CDS depends on.
func EncodeResources(rs []Resource) string {
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = r.Encode()
	}
	return strings.Join(lines, "\n")
}

// DecodeResources parses the encoding produced by EncodeResources. An
// empty string decodes to an empty (non-nil) slice.
func DecodeResources(s string) []Resource {
	if s == "" {
		return []Resource{}
	}
	lines := strings.Split(s, "\n")
	out := make([]Resource, len(lines))
	for i, l := range lines {
		out[i] = DecodeResource(l)
	}
	return out
}

func cloneResources(rs []Resource) []Resource {
	if rs == nil {
		return nil
	}
	out := make([]Resource, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

func resourcesEqual(a, b []Resource) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
