package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifelog/internal/contacts"
)

// ContactsOptions holds flags for the contacts command.
type ContactsOptions struct {
	*RootOptions
	Name  string
	Phone string
	Email string
	Me    bool
}

// NewContactsCommand creates the contacts command.
func NewContactsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List or look up contacts in the latest book",
		Long: `List the contacts of the latest archived book, or only those matching
the given name, phone number or email.

Phone numbers and emails are compared after normalization, so
"(555) 123-4567" finds "555-123-4567". --name is a case-insensitive
substring match.

Examples:
  lifelog contacts
  lifelog contacts --phone "(555) 123-4567"
  lifelog contacts --name joe --format json
  lifelog contacts --me`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContacts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "contacts whose name contains this text")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "contacts with this phone number")
	cmd.Flags().StringVar(&opts.Email, "email", "", "contacts with this email address")
	cmd.Flags().BoolVar(&opts.Me, "me", false, "only the data owner")

	return cmd
}

func runContacts(opts *ContactsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.logger(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	book, err := loadBook(ctx, st, cfg, logger)
	if err != nil {
		return err
	}

	found := opts.match(book)
	filtered := opts.Me || opts.Name != "" || opts.Phone != "" || opts.Email != ""
	if filtered && len(found) == 0 {
		return WrapExitError(ExitFailure, "no matching contact", errNotFound)
	}

	if opts.Format == "json" {
		list := make([]map[string]any, len(found))
		for i, c := range found {
			list[i] = c.ToMap()
		}
		return opts.formatter(cmd).JSON(list, "")
	}
	writeContactsText(cmd.OutOrStdout(), found)
	return nil
}

// match returns the contacts passing every given filter, ordered by id.
func (o *ContactsOptions) match(book *contacts.Book) []*contacts.Contact {
	candidates := book.All()
	if o.Me {
		candidates = nil
		if me := book.Me(); me != nil {
			candidates = []*contacts.Contact{me}
		}
	}

	out := []*contacts.Contact{}
	for _, c := range candidates {
		if o.Phone != "" && !holds(book, c, contacts.PhonesField, o.Phone) {
			continue
		}
		if o.Email != "" && !holds(book, c, contacts.EmailsField, o.Email) {
			continue
		}
		if o.Name != "" && !nameContains(c, o.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// holds reports whether c holds raw in field, using the book's index when
// the field is indexed.
func holds(book *contacts.Book, c *contacts.Contact, field, raw string) bool {
	if book.Indexed(field) {
		for _, hit := range book.GetAll(field, raw) {
			if hit == c {
				return true
			}
		}
		return false
	}
	if l, ok := fieldList(c, field); ok {
		return l.Has(raw)
	}
	return false
}

func nameContains(c *contacts.Contact, text string) bool {
	text = strings.ToLower(text)
	names, ok := fieldList(c, contacts.NamesField)
	if !ok {
		return false
	}
	for _, name := range names.Raw() {
		if strings.Contains(strings.ToLower(name), text) {
			return true
		}
	}
	return false
}

// fieldList returns the list under field without creating it.
func fieldList(c *contacts.Contact, field string) (*contacts.FieldValueList, bool) {
	f, ok := c.Field(field)
	if !ok {
		return nil, false
	}
	l, ok := f.(*contacts.FieldValueList)
	return l, ok
}

func writeContactsText(w io.Writer, found []*contacts.Contact) {
	for _, c := range found {
		id, _ := c.ID()
		fmt.Fprintf(w, "%4d  %s\n", id, c.String())
		for _, field := range []string{contacts.NamesField, contacts.PhonesField, contacts.EmailsField} {
			l, ok := fieldList(c, field)
			if !ok || l.IsEmpty() {
				continue
			}
			fmt.Fprintf(w, "      %-7s %s\n", field+":", strings.Join(l.Raw(), ", "))
		}
	}
	fmt.Fprintf(w, "%d contacts\n", len(found))
}
