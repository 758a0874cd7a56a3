package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

const allowListUsage = "usage: allowlist [-config path] add|remove <email>... | list"

// RunAllowList manages the database allow list: add, remove or list.
func RunAllowList(ctx context.Context, repo storage.AllowListRepository, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New(allowListUsage)
	}

	switch cmd, emails := args[0], args[1:]; cmd {
	case "list":
		list, err := repo.ListAllowedEmails(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(w, "allow list is empty")
			return nil
		}
		for _, e := range list {
			fmt.Fprintln(w, e)
		}
		return nil

	case "add", "remove":
		if len(emails) == 0 {
			return errors.New(allowListUsage)
		}
		for _, raw := range emails {
			email, err := parseEmail(raw)
			if err != nil {
				return err
			}
			if cmd == "add" {
				err = repo.AddAllowedEmail(ctx, email)
			} else {
				err = repo.RemoveAllowedEmail(ctx, email)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", cmd, email, err)
			}
			fmt.Fprintf(w, "%s: %s\n", cmd, email)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q; %s", cmd, allowListUsage)
	}
}

// parseEmail accepts a bare address and lowercases it.
func parseEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%q is not an email address", raw)
	}
	return strings.ToLower(addr.Address), nil
}
