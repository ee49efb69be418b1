// Package cds implements the ContentDirectory SOAP service: Browse,
// GetSearchCapabilities, GetSortCapabilities and GetSystemUpdateID,
// rendering catalog objects as DIDL-Lite XML (spec §4.3, grounded on
// the DIDL-Lite structures in content_directory.go).
package cds

import "encoding/xml"

const (
	nsDC   = "http://purl.org/dc/elements/1.1/"
	nsUPnP = "urn:schemas-upnp-org:metadata-1-0/upnp/"
	nsDIDL = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"
)

// didlLite is the root element of a Browse result's Result string
// (spec §4.3 DIDL-Lite rendering).
type didlLite struct {
	XMLName    xml.Name       `xml:"DIDL-Lite"`
	XmlnsDC    string         `xml:"xmlns:dc,attr"`
	XmlnsUPnP  string         `xml:"xmlns:upnp,attr"`
	Xmlns      string         `xml:"xmlns,attr"`
	Containers []didlContainer `xml:"container,omitempty"`
	Items      []didlItem      `xml:"item,omitempty"`
}

func newDIDL() didlLite {
	return didlLite{Xmlns: nsDIDL, XmlnsDC: nsDC, XmlnsUPnP: nsUPnP}
}

type didlContainer struct {
	ID          string `xml:"id,attr"`
	ParentID    string `xml:"parentID,attr"`
	Restricted  string `xml:"restricted,attr"`
	Searchable  string `xml:"searchable,attr,omitempty"`
	ChildCount  int    `xml:"childCount,attr,omitempty"`
	Title       string `xml:"dc:title"`
	Class       string `xml:"upnp:class"`
}

type didlItem struct {
	ID           string     `xml:"id,attr"`
	ParentID     string     `xml:"parentID,attr"`
	Restricted   string     `xml:"restricted,attr"`
	RefID        string     `xml:"refID,attr,omitempty"`
	Title        string     `xml:"dc:title"`
	Creator      string     `xml:"dc:creator,omitempty"`
	Date         string     `xml:"dc:date,omitempty"`
	Description  string     `xml:"dc:description,omitempty"`
	Album        string     `xml:"upnp:album,omitempty"`
	Artist       string     `xml:"upnp:artist,omitempty"`
	Genre        string     `xml:"upnp:genre,omitempty"`
	Class        string     `xml:"upnp:class"`
	TrackNumber  int        `xml:"upnp:originalTrackNumber,omitempty"`
	PlaybackCnt  int        `xml:"upnp:playbackCount,omitempty"`
	Resources    []didlRes  `xml:"res,omitempty"`
}

type didlRes struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Size         string `xml:"size,attr,omitempty"`
	Duration     string `xml:"duration,attr,omitempty"`
	Bitrate      string `xml:"bitrate,attr,omitempty"`
	SampleFreq   string `xml:"sampleFrequency,attr,omitempty"`
	Channels     string `xml:"nrAudioChannels,attr,omitempty"`
	Resolution   string `xml:"resolution,attr,omitempty"`
	URL          string `xml:",chardata"`
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// truncate enforces the configured stringLimit on a title/description
// field, appending an ellipsis when the value is cut (spec §4.3 "a
// configured stringLimit truncates dc:title and dc:description with an
// ellipsis when exceeded").
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}
