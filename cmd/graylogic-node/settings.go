package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/nvram"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

func newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change stored settings while the node is stopped",
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the persisted settings log",
		Args:  cobra.NoArgs,
		RunE:  runSettingsDump,
	}
	dump.Flags().Bool("json", false, "Output as JSON")

	set := &cobra.Command{
		Use:   "set TAG [VALUE]",
		Short: "Apply one setting and save it; an omitted value clears the tag",
		Long: `Apply one setting through the same validation as a remote change and save it.

A tag starting with 0x takes its value as hex text, e.g.
  graylogic-node settings set 0xmqttsha1 "AB:CD:..."`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSettingsSet,
	}

	cmd.AddCommand(dump, set)
	return cmd
}

func newFactoryResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "factory-reset",
		Short: "Invalidate the stored settings so the node starts unconfigured",
		Args:  cobra.NoArgs,
		RunE:  runFactoryReset,
	}
}

// dumpEntry is one setting in JSON output.
type dumpEntry struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
	Core  bool   `json:"core"`
}

func runSettingsDump(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	nv, closeStore, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore() //nolint:errcheck // Read only

	app, records, err := settings.Inspect(nv, nv.Size())
	if err != nil {
		return fmt.Errorf("reading settings log: %w", err)
	}

	entries := make([]dumpEntry, len(records))
	for i, r := range records {
		entries[i] = dumpEntry{Tag: r.Tag, Value: formatValue(r.Value), Core: settings.IsCore(r.Tag)}
	}

	out := cmd.OutOrStdout()
	if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
		data, err := json.MarshalIndent(map[string]any{"app": app, "settings": entries}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "app: %s\n", app)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tVALUE\tOWNER")
	for _, e := range entries {
		owner := "application"
		if e.Core {
			owner = "core"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Tag, e.Value, owner)
	}
	return w.Flush()
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	tag := args[0]
	var value []byte
	if len(args) == 2 {
		value = []byte(args[1])
	}

	return withSettings(cmd, func(store *settings.Store) error {
		if err := store.Apply(tag, value); err != nil {
			if errors.Is(err, settings.ErrUnknownTag) {
				return fmt.Errorf("%w (application tags can only be set while the node runs)", err)
			}
			return err
		}
		if err := store.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s saved\n", strings.ToLower(tag))
		return nil
	})
}

func runFactoryReset(cmd *cobra.Command, _ []string) error {
	return withSettings(cmd, func(store *settings.Store) error {
		if err := store.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "settings invalidated")
		return nil
	})
}

// withSettings opens the configured store, loads the settings log and runs fn.
func withSettings(cmd *cobra.Command, fn func(store *settings.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	nv, closeStore, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore() //nolint:errcheck // Sync already reported any write failure

	store, err := newOfflineStore(nv, cfg)
	if err != nil {
		return err
	}
	return fn(store)
}

// newOfflineStore loads the settings log without the application. Stored
// application tags cannot be validated here, so they are kept as they are
// while loading; new ones are still rejected.
func newOfflineStore(nv nvram.Store, cfg *config.Config) (*settings.Store, error) {
	loading := true
	store, err := settings.New(settings.Options{
		NVRAM:       nv,
		App:         identity.AppName(cfg.Node.App),
		Defaults:    cfg.Defaults.Map(),
		Application: settings.AppFunc(func(string, []byte) bool { return loading }),
	})
	if err != nil {
		return nil, err
	}
	// An absent or foreign log starts empty, as it would on the node.
	_ = store.Load() //nolint:errcheck // Integrity errors leave an empty store
	loading = false
	return store, nil
}

// formatValue renders printable text as is and anything else as hex.
func formatValue(v []byte) string {
	if utf8.Valid(v) && strings.IndexFunc(string(v), func(r rune) bool { return !unicode.IsPrint(r) }) < 0 {
		return string(v)
	}
	hex := make([]string, len(v))
	for i, b := range v {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	return "0x" + strings.Join(hex, ":")
}
