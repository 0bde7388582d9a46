package driver

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/lifelog/internal/contacts"
)

// multiValueSep separates several values packed into one Google CSV cell.
const multiValueSep = " ::: "

// primaryMark prefixes the type of a contact's primary value.
const primaryMark = "* "

// googleFields maps Google CSV column groups ("Phone 1 - Value") to
// contact fields.
var googleFields = []struct {
	field  string
	prefix string
	value  string
}{
	{contacts.PhonesField, "Phone", "Value"},
	{contacts.EmailsField, "E-mail", "Value"},
	{contacts.AddressesField, "Address", "Formatted"},
	{contacts.OrganizationsField, "Organization", "Name"},
	{contacts.RelationsField, "Relation", "Value"},
}

// GoogleCSVDriver reads a Google Contacts CSV export and emits one contact
// record per row, with the row number as its source-local id.
type GoogleCSVDriver struct{}

func (GoogleCSVDriver) Name() string {
	return "google-csv"
}

func (GoogleCSVDriver) Read(ctx context.Context, path string, fn Handler) error {
	rc, err := OpenData(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := readGoogleCSV(ctx, rc, fn); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func readGoogleCSV(ctx context.Context, r io.Reader, fn Handler) error {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	for id := 0; ; id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("row %d: %w", id+1, err)
		}

		row := make(map[string]string, len(header))
		for i, label := range header {
			row[label] = fields[i]
		}
		c, err := googleContact(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", id+1, err)
		}

		rec := Record(c.ToMap())
		rec["stream"] = StreamContact
		rec["id"] = id
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func googleContact(row map[string]string) (*contacts.Contact, error) {
	c, err := contacts.New()
	if err != nil {
		return nil, err
	}

	switch {
	case strings.TrimSpace(row["Name"]) != "":
		c.SetName(row["Name"])
	case strings.TrimSpace(row["Organization 1 - Name"]) != "":
		c.SetName(row["Organization 1 - Name"])
	}

	for _, g := range googleFields {
		if err := googleValues(c, row, g.field, g.prefix, g.value); err != nil {
			return nil, err
		}
	}

	if notes := row["Notes"]; strings.TrimSpace(notes) != "" {
		if err := c.Values(contacts.NotesField).Append(notes); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// googleValues adds the numbered "<prefix> N - Type" / "<prefix> N - <value>"
// column pairs of row to field.
func googleValues(c *contacts.Contact, row map[string]string, field, prefix, valueCol string) error {
	list := c.Values(field)
	for i := 1; ; i++ {
		typ := strings.TrimSpace(row[fmt.Sprintf("%s %d - Type", prefix, i)])
		raw := row[fmt.Sprintf("%s %d - %s", prefix, i, valueCol)]
		if typ == "" && strings.TrimSpace(raw) == "" {
			return nil
		}

		primary := strings.HasPrefix(typ, primaryMark)
		label := strings.TrimSpace(strings.TrimPrefix(typ, primaryMark))

		for j, v := range strings.Split(raw, multiValueSep) {
			var opts []contacts.ValueOption
			if label != "" {
				opts = append(opts, contacts.Labels(label))
			}
			if primary && j == 0 && !list.HasDefault() {
				opts = append(opts, contacts.Default(true))
			}
			fv, err := contacts.NewFieldValue(v, opts...)
			if err != nil {
				return fmt.Errorf("%s %d: %w", prefix, i, err)
			}
			if err := list.Append(fv); err != nil {
				return fmt.Errorf("%s %d: %w", prefix, i, err)
			}
		}
	}
}
