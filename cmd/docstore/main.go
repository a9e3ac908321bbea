package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"docstore-go/internal/app"
	"docstore-go/internal/config"
	"docstore-go/internal/ds"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config from the default location.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a started DocstoreApp. The caller must
// defer app.Close(). operation identifies the CLI command being run.
func newApp(ctx context.Context, operation string) (*app.DocstoreApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDocstoreApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on stderr and reads a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// readPayload reads a document payload from path, or from stdin when path
// is empty or "-".
func readPayload(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening payload: %w", err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}
	return string(b), nil
}

// parseMeta turns repeated key=value flags into FileMeta.
func parseMeta(pairs []string) (ds.FileMeta, error) {
	meta := ds.FileMeta{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid meta %q: want key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

var rootCmd = &cobra.Command{
	Use:          "docstore",
	Short:        "Document metadata and file store",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		datastoreType, _ := cmd.Flags().GetString("type")
		bucket, _ := cmd.Flags().GetString("bucket")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		cfg.LogDir = defaults.LogDir
		cfg.Datastore.Type = datastoreType
		cfg.Datastore.S3Bucket = bucket
		cfg.Datastore.Encrypt = encrypt

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Datastore: %s\n", datastoreType)
		fmt.Printf("Base Dir:  %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		dirs := cfg.Datastore.Directories(cfg.BaseDir)
		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Datastore: %s\n", cfg.Datastore.Type)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		if cfg.LogLevel != "" {
			fmt.Printf("Log Level: %s\n", cfg.LogLevel)
		}
		fmt.Printf("Data Dir:  %s\n", dirs.DataDir)
		fmt.Printf("Stash Dir: %s\n", dirs.StashDir)
		fmt.Printf("Files Dir: %s\n", dirs.FilesDir)
		fmt.Printf("Logs Dir:  %s\n", dirs.LogsDir)
		if cfg.Datastore.Type == "cloud" {
			fmt.Printf("Bucket:    %s/%s\n", cfg.Datastore.S3Bucket, cfg.Datastore.S3Prefix)
			fmt.Printf("Encrypted: %v\n", cfg.Datastore.Encrypt)
		}
		return nil
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage document metadata",
}

var docPutCmd = &cobra.Command{
	Use:   "put FINGERPRINT [FILE]",
	Short: "Store a document's metadata (reads stdin without FILE)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		data, err := readPayload(path)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "PutDoc")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.PutDoc(cmd.Context(), args[0], data); err != nil {
			return err
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var docGetCmd = &cobra.Command{
	Use:   "get FINGERPRINT",
	Short: "Print a document's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetDoc")
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.GetDoc(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	},
}

var docLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List document fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListDocs")
		if err != nil {
			return err
		}
		defer a.Close()

		refs, err := a.ListDocs(cmd.Context())
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			fmt.Println("No documents.")
			return nil
		}
		for _, ref := range refs {
			fmt.Println(ref.Fingerprint)
		}
		return nil
	},
}

var docRmCmd = &cobra.Command{
	Use:   "rm FINGERPRINT",
	Short: "Delete a document and optionally its data file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataFile, _ := cmd.Flags().GetString("file")

		a, err := newApp(cmd.Context(), "DeleteDoc")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.DeleteDoc(cmd.Context(), args[0], dataFile)
		if err != nil {
			return err
		}
		fmt.Printf("%s  deleted=%v\n", result.DocMetaFile.Path, result.DocMetaFile.Deleted)
		if dataFile != "" {
			fmt.Printf("%s  deleted=%v\n", result.DataFile.Path, result.DataFile.Deleted)
		}
		return nil
	},
}

var docExistsCmd = &cobra.Command{
	Use:   "exists FINGERPRINT",
	Short: "Exit non-zero if a document is unknown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DocExists")
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.DocExists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no document %s", args[0])
		}
		fmt.Println("yes")
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage stored files",
}

func printDescriptor(d *ds.FileDescriptor) {
	fmt.Printf("Key:      %s:%s\n", d.Backend, d.Ref.Name)
	fmt.Printf("URL:      %s\n", d.URL)
	fmt.Printf("Size:     %d\n", d.Size)
	fmt.Printf("BLAKE3:   %s\n", d.Hash)
	fmt.Printf("Modified: %s\n", d.ModifiedAt.Format("2006-01-02 15:04:05"))

	keys := make([]string, 0, len(d.Meta))
	for k := range d.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("Meta:     %s=%s\n", k, d.Meta[k])
	}
}

var filePutCmd = &cobra.Command{
	Use:   "put BACKEND PATH",
	Short: "Store a file in a backend (stash, logs, attachment, image)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		pairs, _ := cmd.Flags().GetStringArray("meta")
		meta, err := parseMeta(pairs)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "PutFile")
		if err != nil {
			return err
		}
		defer a.Close()

		desc, err := a.PutFile(cmd.Context(), args[0], name, args[1], meta)
		if err != nil {
			return err
		}
		printDescriptor(desc)
		return nil
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get BACKEND NAME",
	Short: "Write a stored file to stdout or --out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd.Context(), "GetFile")
		if err != nil {
			return err
		}
		defer a.Close()

		content, err := a.GetFile(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if out == "" {
			_, err = os.Stdout.Write(content)
			return err
		}
		if err := os.WriteFile(out, content, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", len(content), out)
		return nil
	},
}

var fileInfoCmd = &cobra.Command{
	Use:   "info BACKEND NAME",
	Short: "Describe a stored file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FileInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		desc, err := a.FileInfo(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printDescriptor(desc)
		return nil
	},
}

var fileRmCmd = &cobra.Command{
	Use:   "rm BACKEND NAME",
	Short: "Delete a stored file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteFile")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.DeleteFile(cmd.Context(), args[0], args[1])
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print every record as JSON, optionally following changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, "Snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		enc := json.NewEncoder(os.Stdout)
		result, err := a.Snapshot(ctx, func(batch *ds.SnapshotBatch) error {
			return enc.Encode(batch)
		})
		if err != nil {
			return err
		}
		defer result.Subscription.Unsubscribe()

		fmt.Fprintf(os.Stderr, "%d record(s) at seq %d\n", result.Count, result.Seq)
		if follow {
			<-ctx.Done()
		}
		return nil
	},
}

// overview command
var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Summarize the datastore",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Overview")
		if err != nil {
			return err
		}
		defer a.Close()

		overview, err := a.Overview(cmd.Context())
		if err != nil {
			return err
		}
		caps := a.Datastore().Capabilities()

		fmt.Printf("Backend:   %s\n", overview.Backend)
		fmt.Printf("Documents: %d\n", overview.NrDocs)
		if !overview.Created.IsZero() {
			fmt.Printf("Created:   %s\n", overview.Created.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Layers:    %s\n", strings.Join(caps.NetworkLayers, ", "))
		fmt.Printf("Durable:   %v\n", caps.Durable)
		fmt.Printf("Mirrored:  %v\n", caps.Mirrored)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the key pair used to seal mirrored objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// cloud command
var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Manage the cloud mirror",
}

var cloudRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Pull every mirrored record into the local datastore",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if a.NeedsPassphrase() {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		result, err := a.Restore(cmd.Context(), passphrase)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored %d document(s) and %d file(s)\n", result.Docs, result.Files)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().StringP("type", "t", "disk", "Datastore type ("+strings.Join(config.DatastoreTypes, ", ")+")")
	configInitCmd.Flags().String("bucket", "", "S3 bucket for the cloud datastore")
	configInitCmd.Flags().Bool("encrypt", false, "Seal mirrored objects with the age key pair")

	// doc subcommands
	docCmd.AddCommand(docPutCmd)
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docLsCmd)
	docCmd.AddCommand(docRmCmd)
	docCmd.AddCommand(docExistsCmd)
	docRmCmd.Flags().StringP("file", "f", "", "Data file in the stash backend to delete with the document")

	// file subcommands
	fileCmd.AddCommand(filePutCmd)
	fileCmd.AddCommand(fileGetCmd)
	fileCmd.AddCommand(fileInfoCmd)
	fileCmd.AddCommand(fileRmCmd)
	filePutCmd.Flags().StringP("name", "n", "", "Name to store the file under (default: base name of PATH)")
	filePutCmd.Flags().StringArrayP("meta", "m", nil, "Metadata as key=value (repeatable)")
	fileGetCmd.Flags().StringP("out", "o", "", "Write to this path instead of stdout")

	keysCmd.AddCommand(keysSetupCmd)
	cloudCmd.AddCommand(cloudRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolP("follow", "f", false, "Keep printing change batches until interrupted")
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(cloudCmd)
}
