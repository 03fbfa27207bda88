package website

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON member names used by the Vulnz API.
const (
	memberDomain             = "domain"
	memberTitle              = "title"
	memberIsSSL              = "is_ssl"
	memberMeta               = "meta"
	memberPlugins            = "wordpress-plugins"
	memberSlug               = "slug"
	memberVersion            = "version"
	memberHasVulnerabilities = "has_vulnerabilities"
	memberVulnerabilities    = "vulnerabilities"
)

// ErrNotObject is returned when a record or plugin entry is not a JSON object.
var ErrNotObject = errors.New("value is not a JSON object")

// referenceLinkKeys are tried in order to find a displayable link in a
// vulnerability given as an object.
var referenceLinkKeys = []string{"url", "link", "href", "permalink", "title", "name", "id"}

// UnmarshalJSON accepts any JSON object. Known members are decoded
// leniently; the rest, and known members that cannot be decoded, go to
// Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data)
	if err != nil {
		return err
	}

	*r = Record{}
	for key, raw := range members {
		var ok bool
		switch key {
		case memberDomain:
			r.Domain, ok = decodeText(raw)
		case memberTitle:
			r.Title, ok = decodeText(raw)
		case memberIsSSL:
			r.IsSSL, ok = decodeFlag(raw)
		case memberMeta:
			var meta map[string]any
			if ok = json.Unmarshal(raw, &meta) == nil; ok {
				r.Meta = meta
			}
		case memberPlugins:
			var exts []Extension
			if ok = json.Unmarshal(raw, &exts) == nil; ok {
				r.Extensions = exts
			}
		}
		if !ok {
			r.Extra = keepMember(r.Extra, key, raw)
		}
	}
	return nil
}

// MarshalJSON writes the typed members over whatever Extra holds, except
// for known members that were kept raw because they could not be decoded.
func (r Record) MarshalJSON() ([]byte, error) {
	out := rawMembers(r.Extra)
	setMember(out, memberDomain, r.Domain)
	if r.Title != "" {
		setMember(out, memberTitle, r.Title)
	}
	setMember(out, memberIsSSL, r.IsSSL)
	if r.Meta != nil {
		setMember(out, memberMeta, r.Meta)
	}
	setMember(out, memberPlugins, r.Extensions)
	return json.Marshal(out)
}

// UnmarshalJSON decodes one plugin entry with the same rules as Record.
func (e *Extension) UnmarshalJSON(data []byte) error {
	members, err := decodeObject(data)
	if err != nil {
		return err
	}

	*e = Extension{}
	for key, raw := range members {
		var ok bool
		switch key {
		case memberSlug:
			e.Slug, ok = decodeText(raw)
		case memberTitle:
			e.Title, ok = decodeText(raw)
		case memberVersion:
			e.Version, ok = decodeText(raw)
		case memberHasVulnerabilities:
			e.HasVulnerabilities, ok = decodeFlag(raw)
		case memberVulnerabilities:
			var refs []Reference
			if ok = json.Unmarshal(raw, &refs) == nil; ok {
				e.Vulnerabilities = refs
			}
		}
		if !ok {
			e.Extra = keepMember(e.Extra, key, raw)
		}
	}
	return nil
}

func (e Extension) MarshalJSON() ([]byte, error) {
	out := rawMembers(e.Extra)
	setMember(out, memberSlug, e.Slug)
	if e.Title != "" {
		setMember(out, memberTitle, e.Title)
	}
	setMember(out, memberVersion, e.Version)
	if e.HasVulnerabilities {
		setMember(out, memberHasVulnerabilities, true)
	}
	if len(e.Vulnerabilities) > 0 {
		setMember(out, memberVulnerabilities, e.Vulnerabilities)
	}
	return json.Marshal(out)
}

// Reference is one vulnerability entry. The API may send a bare link or
// an object; objects are kept whole and Link holds the best display value.
type Reference struct {
	Link string
	raw  json.RawMessage
}

// NewReference returns a reference holding a bare link.
func NewReference(link string) Reference {
	return Reference{Link: link}
}

func (r Reference) String() string {
	return r.Link
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	if text, ok := decodeText(data); ok {
		*r = Reference{Link: text}
		return nil
	}
	members, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("vulnerability must be a string or an object: %w", err)
	}
	*r = Reference{raw: append(json.RawMessage(nil), data...)}
	for _, key := range referenceLinkKeys {
		if text, ok := decodeText(members[key]); ok && text != "" {
			r.Link = text
			break
		}
	}
	return nil
}

func (r Reference) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	return json.Marshal(r.Link)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if members == nil {
		return nil, ErrNotObject
	}
	return members, nil
}

// decodeText accepts a string, a number or null.
func decodeText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// decodeFlag accepts booleans, numbers (non-zero is true), the strings
// "1/0/true/false/yes/no/on/off" and null.
func decodeFlag(raw json.RawMessage) (bool, bool) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return false, false
	}
	switch t := v.(type) {
	case nil:
		return false, true
	case bool:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f != 0, err == nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true, true
		case "", "0", "false", "no", "off":
			return false, true
		}
	}
	return false, false
}

func keepMember(extra map[string]json.RawMessage, key string, raw json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		extra = make(map[string]json.RawMessage)
	}
	extra[key] = append(json.RawMessage(nil), raw...)
	return extra
}

func rawMembers(extra map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(extra)+5)
	for key, raw := range extra {
		out[key] = raw
	}
	return out
}

func setMember(out map[string]any, key string, value any) {
	if _, kept := out[key]; !kept {
		out[key] = value
	}
}
