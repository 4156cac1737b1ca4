// Package featureswitch implements the feature-switch configuration
// document: a JSON file mapping deployment stages to activation rules.
// The codec preserves fields it does not recognize so documents written by
// newer schema revisions survive a read-modify-write cycle intact.
package featureswitch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/switchgate/switchgate/scm"
)

// Document is the parsed feature-switch file. Stage configs and unrecognized
// top-level fields are held as raw JSON so untouched parts of the file
// round-trip byte-for-byte (modulo indentation).
type Document struct {
	ID          string
	Description string

	envs  *orderedRaw // stage name -> raw stage config
	extra *orderedRaw // top-level fields other than Id/Description/Environments
}

// NewDocument builds a canonical document with every known stage present as
// an empty config.
func NewDocument(id, description string) *Document {
	d := &Document{
		ID:          id,
		Description: description,
		envs:        newOrderedRaw(),
		extra:       newOrderedRaw(),
	}
	for _, stage := range CanonicalStages() {
		d.envs.set(stage, json.RawMessage("{}"))
	}
	return d
}

// Stages returns the stage names in document order.
func (d *Document) Stages() []string {
	return append([]string(nil), d.envs.keys...)
}

// HasStage reports whether the stage exists in the document.
func (d *Document) HasStage(name string) bool {
	return d.envs.has(name)
}

// SetStage replaces the stage's config wholesale. The stage must already
// exist; unknown stages are never created implicitly.
func (d *Document) SetStage(name string, cfg StageConfig) error {
	if !d.envs.has(name) {
		return scm.E(scm.KindNotFound, "featureswitch.SetStage",
			fmt.Sprintf("unknown stage %q, available: %s", name, strings.Join(d.Stages(), ", ")),
			"stage", name)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal stage config: %w", err)
	}
	d.envs.set(name, json.RawMessage(raw))
	return nil
}

// StageConfigAt parses the stage's raw config into the known schema.
// Unknown stage fields are dropped from the returned value but remain in the
// document itself.
func (d *Document) StageConfigAt(name string) (StageConfig, error) {
	raw, ok := d.envs.get(name)
	if !ok {
		return StageConfig{}, scm.E(scm.KindNotFound, "featureswitch.StageConfigAt",
			fmt.Sprintf("unknown stage %q", name), "stage", name)
	}
	var cfg StageConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return StageConfig{}, scm.E(scm.KindMalformedDocument, "featureswitch.StageConfigAt",
			fmt.Sprintf("stage %q config is not valid", name), "stage", name).Wrap(err)
	}
	return cfg, nil
}

// Decode parses a feature-switch file. A document without an Environments
// object is malformed: every valid file has one, even if empty.
func Decode(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	top, err := decodeOrderedObject(dec)
	if err != nil {
		return nil, scm.E(scm.KindMalformedDocument, "featureswitch.Decode", "not a JSON object").Wrap(err)
	}

	d := &Document{envs: newOrderedRaw(), extra: newOrderedRaw()}
	sawEnvironments := false
	for _, key := range top.keys {
		raw, _ := top.get(key)
		switch key {
		case "Id":
			if err := json.Unmarshal(raw, &d.ID); err != nil {
				return nil, scm.E(scm.KindMalformedDocument, "featureswitch.Decode", "Id is not a string").Wrap(err)
			}
		case "Description":
			if err := json.Unmarshal(raw, &d.Description); err != nil {
				return nil, scm.E(scm.KindMalformedDocument, "featureswitch.Decode", "Description is not a string").Wrap(err)
			}
		case "Environments":
			envDec := json.NewDecoder(bytes.NewReader(raw))
			envDec.UseNumber()
			envs, err := decodeOrderedObject(envDec)
			if err != nil {
				return nil, scm.E(scm.KindMalformedDocument, "featureswitch.Decode", "Environments is not an object").Wrap(err)
			}
			d.envs = envs
			sawEnvironments = true
		default:
			d.extra.set(key, raw)
		}
	}
	if !sawEnvironments {
		return nil, scm.E(scm.KindMalformedDocument, "featureswitch.Decode", "missing Environments object")
	}
	return d, nil
}

// Encode serializes the document with a stable field order and two-space
// indentation, so a no-op update produces no diff.
func Encode(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")

	writeStringField(&buf, 1, "Id", d.ID)
	buf.WriteString(",\n")
	writeStringField(&buf, 1, "Description", d.Description)
	buf.WriteString(",\n")

	buf.WriteString(`  "Environments": {`)
	if len(d.envs.keys) > 0 {
		buf.WriteString("\n")
		for i, stage := range d.envs.keys {
			raw, _ := d.envs.get(stage)
			if err := writeRawField(&buf, 2, stage, raw); err != nil {
				return nil, err
			}
			if i < len(d.envs.keys)-1 {
				buf.WriteString(",")
			}
			buf.WriteString("\n")
		}
		buf.WriteString("  ")
	}
	buf.WriteString("}")

	for _, key := range d.extra.keys {
		raw, _ := d.extra.get(key)
		buf.WriteString(",\n")
		if err := writeRawField(&buf, 1, key, raw); err != nil {
			return nil, err
		}
	}
	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

func writeStringField(buf *bytes.Buffer, level int, key, value string) {
	indent := strings.Repeat("  ", level)
	k, _ := json.Marshal(key)
	v, _ := json.Marshal(value)
	buf.WriteString(indent)
	buf.Write(k)
	buf.WriteString(": ")
	buf.Write(v)
}

func writeRawField(buf *bytes.Buffer, level int, key string, raw json.RawMessage) error {
	indent := strings.Repeat("  ", level)
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	var val bytes.Buffer
	if err := json.Indent(&val, raw, indent, "  "); err != nil {
		return fmt.Errorf("re-indent %q: %w", key, err)
	}
	buf.WriteString(indent)
	buf.Write(k)
	buf.WriteString(": ")
	buf.Write(val.Bytes())
	return nil
}

// orderedRaw is a JSON object that remembers key order.
type orderedRaw struct {
	keys []string
	vals map[string]json.RawMessage
}

func newOrderedRaw() *orderedRaw {
	return &orderedRaw{vals: make(map[string]json.RawMessage)}
}

func (o *orderedRaw) get(key string) (json.RawMessage, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func (o *orderedRaw) has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

func (o *orderedRaw) set(key string, val json.RawMessage) {
	if _, exists := o.vals[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = val
}

func decodeOrderedObject(dec *json.Decoder) (*orderedRaw, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	o := newOrderedRaw()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		o.set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return o, nil
}
