package catalog

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/platform"
)

// Wire schema. Mirrors the DTD in the external interfaces: pluginRecords
// holds zero-or-more site declarations (local form only) followed by
// plugin elements.

type xmlRecords struct {
	XMLName    xml.Name      `xml:"pluginRecords"`
	Sites      []xmlSite     `xml:"update-site"`
	Plugins    []xmlPlugin   `xml:"plugin"`
}

type xmlSite struct {
	Name        string `xml:"name,attr"`
	URL         string `xml:"url,attr"`
	KeepURL     string `xml:"keep-url,attr,omitempty"`
	Official    string `xml:"official,attr,omitempty"`
	SSHHost     string `xml:"ssh-host,attr,omitempty"`
	UploadDir   string `xml:"upload-directory,attr,omitempty"`
	Description string `xml:"description,omitempty"`
	Maintainer  string `xml:"maintainer,omitempty"`
	Timestamp   string `xml:"timestamp,attr"`
}

type xmlPlugin struct {
	Filename    string            `xml:"filename,attr"`
	UpdateSite  string            `xml:"update-site,attr,omitempty"`
	Executable  string            `xml:"executable,attr,omitempty"`
	Platforms   []string          `xml:"platform"`
	Categories  []string          `xml:"category"`
	Version     *xmlVersion       `xml:"version"`
	PreviousVersions []xmlPreviousVersion `xml:"previous-version"`
}

type xmlVersion struct {
	Timestamp    string            `xml:"timestamp,attr"`
	Checksum     string            `xml:"checksum,attr"`
	Filesize     int64             `xml:"filesize,attr"`
	Description  string            `xml:"description,omitempty"`
	Dependencies []xmlDependency   `xml:"dependency"`
	Links        []string          `xml:"link"`
	Authors      []string          `xml:"author"`
}

type xmlPreviousVersion struct {
	Filename          string `xml:"filename,attr,omitempty"`
	Timestamp         string `xml:"timestamp,attr"`
	TimestampObsolete string `xml:"timestamp-obsolete,attr,omitempty"`
	Checksum          string `xml:"checksum,attr"`
}

type xmlDependency struct {
	Filename  string `xml:"filename,attr"`
	Timestamp string `xml:"timestamp,attr,omitempty"`
	Overrides string `xml:"overrides,attr,omitempty"`
}

// embeddedDTD is written at the top of every catalog the writer produces,
// matching the external-interfaces schema. It is not re-validated on
// read beyond the required-attribute checks in decode(): a foreign DTD
// doesn't make a document corrupt by itself.
const embeddedDTD = `<!DOCTYPE pluginRecords [
<!ELEMENT pluginRecords (update-site|disabled-update-site)* , plugin*>
<!ELEMENT plugin (update-site?, filename, executable?, platform*, category*, version?, previous-version*)>
<!ELEMENT version (timestamp, checksum, filesize, description?, dependency*, link*, author*)>
<!ELEMENT dependency (filename, timestamp?, overrides?)>
<!ELEMENT previous-version (filename?, timestamp, timestamp-obsolete?, checksum)>
<!ELEMENT update-site (name, url, keep-url?, official?, ssh-host?, upload-directory?, description?, maintainer?, timestamp)>
]>
`

// WriteLocal serializes c, including its Sites, as the GZIP-compressed
// local form of the catalog (the form written to <root>/db.xml.gz).
func WriteLocal(w io.Writer, c *Collection) error {
	return write(w, c, true)
}

// WriteRemote serializes c without Sites, the form published by an
// uploader to a remote update site.
func WriteRemote(w io.Writer, c *Collection) error {
	return write(w, c, false)
}

func write(w io.Writer, c *Collection, includeSites bool) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return errs.Wrap(err, "failed to open gzip writer")
	}
	defer gz.Close()

	if _, err := gz.Write([]byte(xml.Header)); err != nil {
		return err
	}
	if _, err := gz.Write([]byte(embeddedDTD)); err != nil {
		return err
	}

	records := toXML(c, includeSites)
	enc := xml.NewEncoder(gz)
	enc.Indent("", "  ")
	if err := enc.Encode(records); err != nil {
		return errs.Wrap(err, "failed to encode catalog")
	}
	return gz.Close()
}

func toXML(c *Collection, includeSites bool) xmlRecords {
	var records xmlRecords
	if includeSites {
		for _, s := range c.Sites {
			records.Sites = append(records.Sites, xmlSite{
				Name: s.Name, URL: s.URL,
				KeepURL:     boolAttr(s.KeepURL),
				Official:    boolAttr(s.Official),
				SSHHost:     s.Host,
				UploadDir:   s.UploadDir,
				Description: s.Description,
				Maintainer:  s.Maintainer,
				Timestamp:   s.LastKnown,
			})
		}
	}
	for _, f := range c.All() {
		p := xmlPlugin{
			Filename:   f.Filename,
			Executable: boolAttr(f.Executable),
		}
		if includeSites {
			p.UpdateSite = f.Site
		}
		for _, t := range f.Platforms {
			p.Platforms = append(p.Platforms, string(t))
		}
		p.Categories = append(p.Categories, f.Categories...)
		if f.Current != nil {
			p.Version = &xmlVersion{
				Timestamp:   f.Current.Timestamp,
				Checksum:    f.Current.Checksum,
				Filesize:    f.Current.Filesize,
				Description: f.Current.Description,
				Links:       f.Links,
				Authors:     f.Authors,
			}
			deps := f.Current.Dependencies
			if len(deps) == 0 {
				deps = f.Dependencies
			}
			for _, d := range deps {
				p.Version.Dependencies = append(p.Version.Dependencies, xmlDependency{
					Filename: d.Filename, Timestamp: d.Timestamp, Overrides: boolAttr(d.Overrides),
				})
			}
		}
		for _, v := range f.Previous {
			p.PreviousVersions = append(p.PreviousVersions, xmlPreviousVersion{
				Filename: v.Filename, Timestamp: v.Timestamp,
				TimestampObsolete: v.TimestampObsolete, Checksum: v.Checksum,
			})
		}
		records.Plugins = append(records.Plugins, p)
	}
	return records
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return ""
}

// Read decodes a GZIP-compressed XML catalog document. Missing required
// attributes (filename on a plugin, checksum and timestamp on a version or
// previous-version) produce ErrCorruptCatalog; a missing filesize is not
// detected and reads as 0. Unknown attributes are ignored by
// encoding/xml's default behavior and need no special handling.
func Read(r io.Reader) (*Collection, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCorruptCatalog, err.Error())
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCorruptCatalog, err.Error())
	}

	var records xmlRecords
	if err := xml.Unmarshal(stripDTD(data), &records); err != nil {
		return nil, errs.Wrap(errs.ErrCorruptCatalog, err.Error())
	}

	return fromXML(records)
}

// ReadFile opens and decodes a catalog file from disk.
func ReadFile(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// stripDTD removes the embedded DOCTYPE block, if present, since
// encoding/xml does not resolve internal subsets and chokes on some
// DOCTYPE shapes.
func stripDTD(data []byte) []byte {
	start := bytes.Index(data, []byte("<!DOCTYPE"))
	if start < 0 {
		return data
	}
	end := bytes.Index(data[start:], []byte("]>"))
	if end < 0 {
		return data
	}
	end += start + len("]>")
	out := make([]byte, 0, len(data)-(end-start))
	out = append(out, data[:start]...)
	out = append(out, data[end:]...)
	return out
}

func fromXML(records xmlRecords) (*Collection, error) {
	c := NewCollection()
	for _, s := range records.Sites {
		if s.Name == "" || s.URL == "" || s.Timestamp == "" {
			return nil, errs.Wrap(errs.ErrCorruptCatalog, "update-site missing a required attribute")
		}
		c.Sites = append(c.Sites, &Site{
			Name: s.Name, URL: s.URL, Host: s.SSHHost, UploadDir: s.UploadDir,
			Description: s.Description, Maintainer: s.Maintainer, LastKnown: s.Timestamp,
			Active: true, Official: s.Official == "true", KeepURL: s.KeepURL == "true",
		})
	}
	for _, p := range records.Plugins {
		if p.Filename == "" {
			return nil, errs.Wrap(errs.ErrCorruptCatalog, "plugin missing required filename attribute")
		}
		f := &File{
			Filename:    p.Filename,
			Site:        p.UpdateSite,
			Executable:  p.Executable == "true",
			Categories:  append([]string(nil), p.Categories...),
		}
		for _, t := range p.Platforms {
			f.Platforms = append(f.Platforms, platform.Tag(t))
		}
		if p.Version != nil {
			if p.Version.Checksum == "" || p.Version.Timestamp == "" {
				return nil, errs.Wrapf(errs.ErrCorruptCatalog, "plugin %s version missing checksum or timestamp", p.Filename)
			}
			f.Current = &Version{
				Checksum: p.Version.Checksum, Timestamp: p.Version.Timestamp,
				Filesize: p.Version.Filesize, Description: p.Version.Description,
				Links: p.Version.Links, Authors: p.Version.Authors,
			}
			f.Filesize = p.Version.Filesize
			f.Description = p.Version.Description
			f.Links = p.Version.Links
			f.Authors = p.Version.Authors
			for _, d := range p.Version.Dependencies {
				if d.Filename == "" {
					return nil, errs.Wrapf(errs.ErrCorruptCatalog, "plugin %s dependency missing filename", p.Filename)
				}
				f.Dependencies = append(f.Dependencies, Dependency{
					Filename: d.Filename, Timestamp: d.Timestamp, Overrides: d.Overrides == "true",
				})
			}
			f.Current.Dependencies = f.Dependencies
		}
		for _, pv := range p.PreviousVersions {
			if pv.Checksum == "" || pv.Timestamp == "" {
				return nil, errs.Wrapf(errs.ErrCorruptCatalog, "plugin %s previous-version missing checksum or timestamp", p.Filename)
			}
			f.Previous = append(f.Previous, Version{
				Filename: pv.Filename, Timestamp: pv.Timestamp,
				TimestampObsolete: pv.TimestampObsolete, Checksum: pv.Checksum,
			})
		}
		c.Put(f)
	}
	return c, nil
}
