// Package config implements the server's XPath-addressable configuration
// tree: an XML document unmarshalled into a Go struct, with every element
// this package reads carrying a declared default so an unmarshal of a
// config file that omits optional elements still yields a fully-populated
// tree (and a subsequent Save reproduces those defaults), per spec §6.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"
)

// ScanMode selects how an autoscan directory is driven.
type ScanMode string

const (
	ScanModeTimed   ScanMode = "timed"
	ScanModeInotify ScanMode = "inotify"
)

// ScanLevel selects how aggressively a rescan re-examines known files.
type ScanLevel string

const (
	ScanLevelBasic ScanLevel = "basic"
	ScanLevelFull  ScanLevel = "full"
)

// LayoutType selects the virtual-layout engine.
type LayoutType string

const (
	LayoutBuiltin  LayoutType = "builtin"
	LayoutScripted LayoutType = "js"
	LayoutDisabled LayoutType = "disabled"
)

// StorageDriver selects the SQL backend. Only sqlite3 is implemented by
// this repository's storage package; mysql is accepted in config for
// compatibility with the original option surface, but storage.Open does
// not read this setting and always opens sqlite3.
type StorageDriver string

const (
	DriverSQLite3 StorageDriver = "sqlite3"
	DriverMySQL   StorageDriver = "mysql"
)

// AutoscanDirectory is one configured `/import/autoscan/directory` entry.
type AutoscanDirectory struct {
	Location  string    `xml:"location,attr"`
	Mode      ScanMode  `xml:"mode,attr"`
	Level     ScanLevel `xml:"level,attr"`
	Recursive bool      `xml:"recursive,attr"`
	Hidden    bool      `xml:"hidden-files,attr"`
	Interval  int       `xml:"interval,attr"` // seconds, timed mode only
}

// Mapping is a single key/value pair inside /import/mappings/*.
type Mapping struct {
	From string `xml:"from,attr"`
	To   string `xml:"to,attr"`
}

type server struct {
	Home    string `xml:"home"`
	Webroot string `xml:"webroot"`
	UDN     string `xml:"udn"`
	IP      string `xml:"ip"`
	Port    int    `xml:"port"`
	Alive   int    `xml:"alive"` // SSDP NOTIFY re-announce interval, seconds
	Storage struct {
		Driver StorageDriver `xml:"driver,attr"`
	} `xml:"storage"`
	Protocol struct {
		HideFsRoot   bool   `xml:"hide-fs-root"`
		StringLimit  int    `xml:"string-limit"`  // dc:title/dc:description truncation, 0 disables
		PlayedMarker string `xml:"played-marker"` // prefix applied to titles of PLAYED items
	} `xml:"protocolInfo"`
}

type mappings struct {
	ExtensionMimetype []Mapping `xml:"extension-mimetype>map"`
	MimetypeUpnpClass []Mapping `xml:"mimetype-upnpclass>map"`
	MimetypeContent   []Mapping `xml:"mimetype-contenttype>map"`
}

type scripting struct {
	VirtualLayout struct {
		Type LayoutType `xml:"type,attr"`
	} `xml:"virtual-layout"`
}

type importCfg struct {
	FilesystemCharset      string              `xml:"filesystem-charset"`
	MetadataCharset        string              `xml:"metadata-charset"`
	IgnoreUnknownExtension bool                `xml:"ignore-unknown-extensions"`
	HiddenFiles            bool                `xml:"hidden-files"`
	Mappings               mappings            `xml:"mappings"`
	Autoscan               []AutoscanDirectory `xml:"autoscan>directory"`
	Scripting              scripting           `xml:"scripting"`
}

// Config is the root of the configuration tree, `/server` and `/import`.
type Config struct {
	XMLName xml.Name  `xml:"config"`
	Server  server    `xml:"server"`
	Import  importCfg `xml:"import"`

	// CLI-only, never persisted: daemonize on startup.
	Daemon bool `xml:"-"`
}

// Default returns a Config populated with the option defaults named in
// spec §6 ("Missing optional options fall back to declared defaults").
func Default() *Config {
	c := &Config{}
	c.Server.Home = "."
	c.Server.Webroot = "web"
	c.Server.IP = ""
	c.Server.Port = 49494
	c.Server.Alive = 180
	c.Server.Storage.Driver = DriverSQLite3
	c.Import.FilesystemCharset = "UTF-8"
	c.Import.MetadataCharset = "UTF-8"
	c.Import.Scripting.VirtualLayout.Type = LayoutBuiltin
	return c
}

// Load reads and unmarshals the config file at path, applying defaults
// to any element the file omits, then writes the effective tree back to
// path so later reads see the same set of elements (spec §6's
// auto-create-on-read / round-trip-on-save requirement).
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := c.Save(path); err != nil {
			return nil, fmt.Errorf("creating default config at %s: %w", path, err)
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	fresh := Default()
	if err := xml.Unmarshal(data, fresh); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := fresh.Save(path); err != nil {
		return nil, fmt.Errorf("saving round-tripped config %s: %w", path, err)
	}
	return fresh, nil
}

// Save writes the effective configuration tree back to path.
func (c *Config) Save(path string) error {
	data, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}

// ExtensionMimeType looks up /import/mappings/extension-mimetype.
func (c *Config) ExtensionMimeType(ext string) (string, bool) {
	return lookup(c.Import.Mappings.ExtensionMimetype, ext)
}

// MimeTypeUpnpClass looks up /import/mappings/mimetype-upnpclass, falling
// back to the major-type wildcard ("audio/*") the spec names.
func (c *Config) MimeTypeUpnpClass(mimeType string) (string, bool) {
	if v, ok := lookup(c.Import.Mappings.MimetypeUpnpClass, mimeType); ok {
		return v, true
	}
	if i := indexByte(mimeType, '/'); i >= 0 {
		return lookup(c.Import.Mappings.MimetypeUpnpClass, mimeType[:i+1]+"*")
	}
	return "", false
}

// MimeTypeContentType looks up /import/mappings/mimetype-contenttype.
func (c *Config) MimeTypeContentType(mimeType string) (string, bool) {
	return lookup(c.Import.Mappings.MimetypeContent, mimeType)
}

func lookup(maps []Mapping, key string) (string, bool) {
	for _, m := range maps {
		if m.From == key {
			return m.To, true
		}
	}
	return "", false
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// AliveInterval returns /server/alive as a time.Duration.
func (c *Config) AliveInterval() time.Duration {
	return time.Duration(c.Server.Alive) * time.Second
}
