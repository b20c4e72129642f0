package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/catalog/internal/storage"
	"github.com/triage-ai/catalog/internal/store"
	"gopkg.in/yaml.v3"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Insert the records of a JSON or YAML file as one batch",
		Long: `Reads a list of {site, resource, sensitivity_type} records, either as a
top-level list or under a "records" key, and inserts them in a single
transaction. The format is chosen by file extension (.json, .yaml, .yml).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := parseRecordsFile(args[0])
			if err != nil {
				return err
			}

			catalog, err := a.catalog()
			if err != nil {
				return err
			}

			started := time.Now()
			err = catalog.BatchInsert(cmd.Context(), records)
			a.audit(storage.OpBatchInsert, records, started, err)
			if err != nil && !cleanupOnly(err) {
				if store.IsConflict(err) {
					return fmt.Errorf("import: %s repeats an existing (site, resource) pair, nothing was inserted: %w", args[0], err)
				}
				return fmt.Errorf("import: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", len(records))
			return nil
		},
	}
}

// parseRecordsFile reads records from a .json, .yaml or .yml file. Unknown
// fields are rejected.
func parseRecordsFile(path string) ([]store.SensitivityRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parseRecordsFile: %w", err)
	}

	var records []store.SensitivityRecord
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		records, err = parseJSONRecords(raw)
	case ".yaml", ".yml":
		records, err = parseYAMLRecords(raw)
	default:
		return nil, fmt.Errorf("parseRecordsFile: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parseRecordsFile: %s: %w", path, err)
	}
	if records == nil {
		records = []store.SensitivityRecord{}
	}
	return records, nil
}

type recordsDoc struct {
	Records []store.SensitivityRecord `json:"records" yaml:"records"`
}

func parseJSONRecords(raw []byte) ([]store.SensitivityRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []store.SensitivityRecord
		if err := dec.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var doc recordsDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Records, nil
}

func parseYAMLRecords(raw []byte) ([]store.SensitivityRecord, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	// Re-decode with KnownFields so typos in keys are reported.
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		var records []store.SensitivityRecord
		if err := dec.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	case yaml.MappingNode:
		var doc recordsDoc
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.Records, nil
	default:
		return nil, fmt.Errorf("expected a list of records or a records mapping")
	}
}
