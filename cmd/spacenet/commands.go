package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spacenet/internal/core"
	"spacenet/internal/dataset"
	"spacenet/internal/entitymodel"
	"spacenet/internal/entitymodel/sqlbundle"
	"spacenet/internal/fixtures"
	"spacenet/pkg/domain"
)

func parseKind(s string) (domain.EntityKind, error) {
	kind := domain.EntityKind(strings.ToLower(s))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown kind %q (want node, edge, element or resource)", s)
	}
	return kind, nil
}

func parsePayload(data string) (map[string]any, error) {
	payload := make(map[string]any)
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse --data: %w", err)
	}
	return payload, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema catalog and print its fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, kind := range domain.Kinds() {
				fmt.Fprintf(a.stdout, "%-9s %s\n", kind, joinDiscriminants(a.model.Registry.Discriminants(kind)))
			}
			fmt.Fprintf(a.stdout, "shapes    %d\n", len(a.model.Mapping.Shapes()))
			fmt.Fprintf(a.stdout, "version   %s\n", entitymodel.Version(a.model.Mapping))
			return nil
		},
	}
}

func joinDiscriminants(ds []domain.Discriminant) string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return strings.Join(out, ", ")
}

func newOpenAPICmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI components for every shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := entitymodel.Document(a.model.Mapping)
			if err != nil {
				return err
			}
			switch format {
			case "json":
				return a.printJSON(doc)
			case "yaml":
				out, err := entitymodel.YAML(doc)
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(out)
				return err
			}
			return fmt.Errorf("unsupported format %q", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func newDDLCmd(a *app) *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the table DDL for a SQL dialect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ddl, err := sqlbundle.Generate(a.model.Encoder, sqlbundle.Dialect(dialect))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(a.stdout, ddl)
			return err
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", string(sqlbundle.DialectSQLite), "sqlite or postgres")
	return cmd
}

func printReport(a *app, verb string, report dataset.Report) {
	fmt.Fprintf(a.stdout, "%s %d records (", verb, report.Total())
	for i, kind := range domain.Kinds() {
		if i > 0 {
			fmt.Fprint(a.stdout, ", ")
		}
		fmt.Fprintf(a.stdout, "%d %ss", report.Created[kind], kind)
	}
	fmt.Fprintln(a.stdout, ")")
	for _, v := range report.Warnings {
		fmt.Fprintf(a.stdout, "warning: %s %s %s: %s\n", v.Rule, v.Kind, v.EntityID, v.Message)
	}
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the lunar sortie reference dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := fixtures.LunarSortie()
			if err != nil {
				return err
			}
			report, err := dataset.Load(cmd.Context(), service, doc)
			if err != nil {
				return err
			}
			printReport(a, "seeded", report)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "export <key>",
		Short: "Write every record to the configured blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := dataset.FormatForKey(args[0])
			if format != "" {
				var err error
				if f, err = dataset.ParseFormat(format); err != nil {
					return err
				}
			}
			exporter, err := a.openExporter(cmd.Context())
			if err != nil {
				return err
			}
			info, err := exporter.Export(cmd.Context(), args[0], f, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "exported %s records to %s (%d bytes)\n", info.Metadata["records"], info.Key, info.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from the key extension)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing export")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <key>",
		Short: "Create every record of an exported dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := a.openExporter(cmd.Context())
			if err != nil {
				return err
			}
			report, err := exporter.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(a, "imported", report)
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "create <kind>",
		Short: "Create a record from a JSON create payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			payload, err := parsePayload(data)
			if err != nil {
				return err
			}
			service, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			rec, _, err := service.CreateFromPayload(cmd.Context(), kind, payload)
			if err != nil {
				return err
			}
			return a.printJSON(rec)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON payload including \"type\"")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "update <kind> <id>",
		Short: "Apply a JSON update payload to a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			payload, err := parsePayload(data)
			if err != nil {
				return err
			}
			service, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			rec, _, err := service.UpdateFromPayload(cmd.Context(), kind, args[1], payload)
			if err != nil {
				return err
			}
			return a.printJSON(rec)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON payload including \"type\"")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Print one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			service, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := service.Get(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return a.printJSON(rec)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "Print records in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			service, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			records, err := service.List(cmd.Context(), kind, offset, limit)
			if err != nil {
				return err
			}
			if records == nil {
				records = []core.Record{}
			}
			return a.printJSON(records)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().IntVar(&limit, "limit", core.DefaultListLimit, "maximum records to print")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a record and print what was removed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			service, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			rec, _, err := service.Delete(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return a.printJSON(rec)
		},
	}
}
