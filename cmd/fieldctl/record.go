package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/matheus3301/fieldsync/internal/store"
	"github.com/matheus3301/fieldsync/internal/tui/client"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	GroupID: "data",
	Short:   "Create, read, update and delete local records",
	Long: fmt.Sprintf(`Work with records in the local store. Every write is queued for sync.

Collections: %s

Fields are given as key=value pairs; values that parse as JSON (numbers,
booleans, objects) keep their type, anything else is a string.`, strings.Join(store.Collections(), ", ")),
}

var recordCreateCmd = &cobra.Command{
	Use:   "create <collection> [key=value...]",
	Short: "Create a record",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(args[1:])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			doc, err := c.Create(ctx, args[0], store.NewDocument(fields))
			if err != nil {
				return err
			}
			return printDocument(doc)
		})
	},
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <collection> <id> key=value...",
	Short: "Merge fields into a record",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseFields(args[2:])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			doc, err := c.Update(ctx, args[0], args[1], fields)
			if err != nil {
				return err
			}
			return printDocument(doc)
		})
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <collection> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			if err := c.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			if !jsonFlag {
				fmt.Printf("Deleted %s/%s\n", args[0], args[1])
			}
			return nil
		})
	},
}

var recordGetCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			doc, err := c.Get(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("%s/%s not found", args[0], args[1])
			}
			return printDocument(doc)
		})
	},
}

var recordListCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "List records in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			docs, err := c.List(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(docs)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVERSION\tSYNC\tUPDATED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.ID, d.Version, d.SyncStatus, d.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		})
	},
}

func init() {
	recordCmd.AddCommand(recordCreateCmd, recordUpdateCmd, recordDeleteCmd, recordGetCmd, recordListCmd)
	rootCmd.AddCommand(recordCmd)
}

// parseFields turns key=value arguments into a field map.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q: want key=value", a)
		}
		if store.IsSystemField(k) {
			return nil, fmt.Errorf("field %q is managed by the store", k)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			fields[k] = parsed
		} else {
			fields[k] = v
		}
	}
	return fields, nil
}

func printDocument(doc *store.Document) error {
	if jsonFlag {
		return outputJSON(doc)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
