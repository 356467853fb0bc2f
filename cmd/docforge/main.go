// cmd/docforge/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docforge/internal/aspect"
	"docforge/internal/config"
	"docforge/internal/importer"
	"docforge/internal/logging"
	"docforge/internal/refs"
	"docforge/internal/service"
	"docforge/internal/storage"
	"docforge/internal/version"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "docforge",
	Short: "Docforge manages versioned structured documents",
	Long: `Docforge stores structured documents with a language-neutral base and
per-language overlays, keeps their full version history as reverse deltas,
and imports whole domains of interdependent documents in a safe order.`,
}

type app struct {
	store  *storage.BadgerStore
	svc    *service.Service
	loader *importer.Loader
	log    *logging.Logger
}

func initApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	path := dbPath
	if path == "" {
		path = cfg.Database.Path
	}
	store, err := storage.Open(path, logger.Logger)
	if err != nil {
		return nil, err
	}

	versions := version.NewStore(store, logger.Logger)
	resolver := refs.NewResolver(store, store, logger.Logger)
	svc, err := service.New(store, store, resolver, versions, logger.Logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		store:  store,
		svc:    svc,
		loader: importer.NewLoader(svc, store, logger.Logger),
		log:    logger,
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")

	var lenient bool
	var watch bool
	var strictParse bool
	importCmd := &cobra.Command{
		Use:   "import [domain-dir]",
		Short: "Import a domain folder of documents",
		Long: `Imports a domain init folder: domain metadata, structural documents in
dependency order, then language overlays with the default language first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			mode := aspect.Permissive
			if strictParse {
				mode = aspect.Strict
			}
			ordering := importer.StrictOrdering
			if lenient {
				ordering = importer.LenientOrdering
			}

			if watch {
				w, err := importer.NewWatcher(a.loader, a.log.Logger)
				if err != nil {
					return err
				}
				defer w.Close()
				return w.Watch(args[0], mode, ordering)
			}

			report, err := a.loader.Run(args[0], mode, ordering)
			if err != nil {
				return fmt.Errorf("importing %s: %w", args[0], err)
			}
			importer.PrintReport(os.Stdout, report)
			return nil
		},
	}
	importCmd.Flags().BoolVar(&lenient, "lenient", false, "skip documents with circular dependencies instead of aborting")
	importCmd.Flags().BoolVar(&watch, "watch", false, "keep watching the folder and re-import on changes")
	importCmd.Flags().BoolVar(&strictParse, "strict-parse", false, "reject unknown aspect keys")

	var language string
	var docVersion int
	getCmd := &cobra.Command{
		Use:   "get [slug]",
		Short: "Print a document's content, optionally at a version and language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			target := docVersion
			if target == 0 {
				base, err := a.store.GetBase(args[0])
				if err != nil {
					return err
				}
				target = base.Version
			}
			content, err := a.svc.GetVersion(args[0], language, target)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(content, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	getCmd.Flags().StringVar(&language, "language", "", "merge the overlay for this language")
	getCmd.Flags().IntVar(&docVersion, "version", 0, "version to reconstruct (default: latest)")

	versionsCmd := &cobra.Command{
		Use:   "versions [slug]",
		Short: "Show a document's version and delta log length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			doc, err := a.store.GetBase(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: version %d, %d reverse deltas\n",
				doc.Slug, doc.Version, len(doc.Deltas))
			return nil
		},
	}

	smashCmd := &cobra.Command{
		Use:   "smash [slug]",
		Short: "Compact the latest version when every dependent already pins it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			if err := a.svc.Smash(args[0]); err != nil {
				return err
			}
			doc, err := a.store.GetBase(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("smashed %s to version %d\n", doc.Slug, doc.Version)
			return nil
		},
	}

	rootCmd.AddCommand(importCmd, getCmd, versionsCmd, smashCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
