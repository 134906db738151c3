// Command countries maintains the countries reference database: it applies
// the schema, exports reporting views, inspects identity keys and purges rows.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"countries/internal/blob"
	"countries/internal/config"
	"countries/internal/core"
	"countries/internal/entitymodel"
	"countries/internal/report"
	"countries/pkg/domain"
)

type globalOptions struct {
	Config string           `long:"config" short:"c" env:"COUNTRIES_CONFIG" description:"YAML configuration file"`
	Log    config.LogConfig `group:"Logging" namespace:"log" env-namespace:"COUNTRIES_LOG"`
}

type app struct {
	opts globalOptions
	out  io.Writer
}

func (a *app) load() (config.Config, error) {
	if err := config.InitLog(a.opts.Log); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(a.opts.Config)
	if err != nil {
		return cfg, err
	}
	cfg.Log = a.opts.Log
	return cfg, nil
}

func (a *app) manager(ctx context.Context) (*core.Manager, config.Config, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, cfg, err
	}
	m, err := core.Open(ctx, cfg)
	return m, cfg, err
}

type cmdMigrate struct{ app *app }

func (c *cmdMigrate) Execute([]string) error {
	cfg, err := c.app.load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := core.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return err
	}
	version := entitymodel.Version()
	log.WithFields(log.Fields{"driver": cfg.Storage.Driver, "version": version}).Info("schema applied")
	_, err = fmt.Fprintf(c.app.out, "schema %s applied (%s)\n", version, cfg.Storage.Driver)
	return err
}

type cmdExport struct {
	Views      []string `long:"view" short:"v" choice:"CountryInfo" choice:"CountryCurrencyInfo" choice:"CountryTimeZoneInfo" choice:"Continent" choice:"CallingCode" choice:"Country" choice:"Currency" choice:"TimeZone" description:"View or table to export (repeatable; default all reporting views)"`
	BlobDriver string   `long:"blob-driver" choice:"fs" choice:"s3" choice:"memory" description:"Override the configured blob driver"`
	BlobRoot   string   `long:"blob-root" description:"Override the filesystem blob root"`

	app *app
}

func (c *cmdExport) Execute([]string) error {
	ctx := context.Background()
	m, cfg, err := c.app.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	if c.BlobDriver != "" {
		cfg.Blob.Driver = c.BlobDriver
	}
	if c.BlobRoot != "" {
		cfg.Blob.FSRoot = c.BlobRoot
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	views := make([]domain.EntityType, 0, len(c.Views))
	for _, v := range c.Views {
		views = append(views, domain.EntityType(v))
	}
	arts, err := report.NewExporter(m, store).ExportAll(ctx, views...)
	for _, a := range arts {
		fmt.Fprintf(c.app.out, "%s\t%d rows\t%s\t%s\n", a.View, a.Rows, a.Info.Key, a.URL)
	}
	return err
}

type cmdIdentity struct {
	Args struct {
		Table string `positional-arg-name:"table" required:"yes"`
	} `positional-args:"yes"`

	app *app
}

func (c *cmdIdentity) Execute([]string) error {
	ctx := context.Background()
	m, _, err := c.app.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	id := m.GetLastIdentityKey(ctx, c.Args.Table)
	if id < 0 {
		return fmt.Errorf("last identity of %q: %w", c.Args.Table, m.LastError())
	}
	_, err = fmt.Fprintln(c.app.out, id)
	return err
}

type cmdPurge struct {
	Table    string `long:"table" short:"t" required:"yes" description:"Table to delete from"`
	IDColumn string `long:"id-column" default:"Id" description:"Key column matched against the ids"`
	Batch    int    `long:"batch" default:"0" description:"Rows per DELETE statement (0 uses the default)"`
	Args     struct {
		IDs []string `positional-arg-name:"id" required:"1"`
	} `positional-args:"yes"`

	app *app
}

func (c *cmdPurge) Execute([]string) error {
	ctx := context.Background()
	m, _, err := c.app.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	var ids []string
	for _, arg := range c.Args.IDs {
		for _, id := range strings.Split(arg, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	n, err := m.BulkDeleteRows(ctx, c.Table, ids, c.IDColumn, c.Batch)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.app.out, "deleted %d rows from %s\n", n, c.Table)
	return err
}

func newParser(out io.Writer) (*flags.Parser, error) {
	a := &app{out: out}
	parser := flags.NewParser(&a.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "countries"
	parser.LongDescription = `countries manages the countries reference database.

Storage and blob settings come from the --config YAML file and COUNTRIES_*
environment variables.`

	commands := []struct {
		name, short string
		data        any
	}{
		{"migrate", "Create the schema if missing", &cmdMigrate{app: a}},
		{"export", "Export reporting views as CSV blobs", &cmdExport{app: a}},
		{"identity", "Print the last identity key of a table", &cmdIdentity{app: a}},
		{"purge", "Delete rows of a table by key", &cmdPurge{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			return nil, fmt.Errorf("add %s command: %w", c.name, err)
		}
	}
	return parser, nil
}

func run(args []string, out io.Writer) error {
	parser, err := newParser(out)
	if err != nil {
		return err
	}
	_, err = parser.ParseArgs(args)
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, fe.Message)
			return
		}
		log.WithError(err).Fatal("countries failed")
	}
}
