// Package driver reads personal-data exports and yields flat JSON records.
//
// Every record carries a "stream" key. Records whose stream is "contact"
// use the serialized contact shape of the contacts package plus a
// source-local "id"; every other stream describes an event (message, call,
// location) whose participants refer to those local ids or to raw
// identifiers such as phone numbers.
//
// Drivers come in three flavors: external programs described by a
// driver.yaml manifest (ExecDriver), JSON-lines files (JSONLDriver) and the
// built-in Google Contacts CSV reader (GoogleCSVDriver).
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/roach88/lifelog/internal/contacts"
)

// StreamContact is the stream name of contact records.
const StreamContact = "contact"

var (
	// ErrUnknownDriver is returned by Registry.Get for unregistered names.
	ErrUnknownDriver = errors.New("unknown driver")

	// ErrInvalidRecord is returned for output lines that are not JSON
	// objects with a string "stream".
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidManifest is returned for driver.yaml files that fail
	// validation.
	ErrInvalidManifest = errors.New("invalid driver manifest")
)

// Record is one decoded driver output line.
type Record map[string]any

// Stream returns the record's stream name.
func (r Record) Stream() string {
	s, _ := r["stream"].(string)
	return s
}

// IsContact reports whether r describes a contact.
func (r Record) IsContact() bool {
	return r.Stream() == StreamContact
}

// DecodeRecord parses one JSON line. Numbers decode as json.Number so ids
// and timestamps keep full precision. Contact records keep the order in
// which the line lists each field's values.
func DecodeRecord(line []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	if r.IsContact() {
		contacts.KeepValueOrder(r, line)
	}
	return r, nil
}

func (r Record) validate() error {
	if r == nil {
		return fmt.Errorf("%w: not an object", ErrInvalidRecord)
	}
	if _, ok := r["stream"].(string); !ok {
		return fmt.Errorf("%w: missing stream", ErrInvalidRecord)
	}
	return nil
}

// Handler receives records in the order a driver produces them. Returning
// an error stops the driver.
type Handler func(Record) error

// Driver reads the export at path.
type Driver interface {
	Name() string
	Read(ctx context.Context, path string, fn Handler) error
}

// Collect reads every record of path into memory.
func Collect(ctx context.Context, d Driver, path string) ([]Record, error) {
	var out []Record
	err := d.Read(ctx, path, func(r Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readLines decodes a stream of JSON records from r, one per line.
func readLines(ctx context.Context, r io.Reader, fn Handler) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w: %v", n, ErrInvalidRecord, err)
		}
		if err := rec.validate(); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Registry maps driver names to drivers.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry returns a registry holding the built-in drivers plus any
// extra ones. Later drivers replace earlier ones with the same name.
func NewRegistry(extra ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	r.Register(JSONLDriver{}, GoogleCSVDriver{})
	r.Register(extra...)
	return r
}

// Register adds drivers to the registry.
func (r *Registry) Register(drivers ...Driver) {
	for _, d := range drivers {
		r.drivers[d.Name()] = d
	}
}

// Get returns the driver registered under name.
func (r *Registry) Get(name string) (Driver, error) {
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return d, nil
}

// Names returns the registered driver names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.drivers))
}
