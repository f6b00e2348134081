// sctl is the control-plane inspection tool: it lists the syscall
// catalog, validates rule files and shows the filter mask a rule set
// would produce, without attaching anything.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/sctrace/sctrace/config"
	"github.com/sctrace/sctrace/filter"
	"github.com/sctrace/sctrace/probes"
	"github.com/sctrace/sctrace/recorder"
	"github.com/sctrace/sctrace/syscalls"
)

var compatFlag bool

func main() {
	app := &cli.App{
		Name:  "sctl",
		Usage: "inspect the syscall catalog and dry-run filter rules",
		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "list the platform syscall tables",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "compat",
						Usage:       "list the compat table instead of the native one",
						Destination: &compatFlag,
					},
				},
				Action: listCatalog,
			},
			{
				Name:      "check",
				Usage:     "validate a session config file",
				ArgsUsage: "<session.toml>",
				Action:    checkConfig,
			},
			{
				Name:      "mask",
				Usage:     "show the syscall mask a session config produces",
				ArgsUsage: "<session.toml>",
				Action:    showMask,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func listCatalog(cCtx *cli.Context) error {
	c := syscalls.Load()

	v := syscalls.NativeEntry
	if compatFlag {
		if !c.HasCompat() {
			return cli.Exit("ERROR: this platform has no compat syscall table", 1)
		}

		v = syscalls.CompatEntry
	}

	for _, d := range c.Table(v) {
		if d.Handler == syscalls.HandlerUnknown {
			continue
		}

		fmt.Printf("%4d  %s\n", d.Nr, d.Name)
	}

	return nil
}

func checkConfig(cCtx *cli.Context) error {
	if cCtx.Args().Len() != 1 {
		_ = cli.ShowSubcommandHelp(cCtx)

		return cli.Exit("\nERROR: expected exactly one config path", 1)
	}

	cfg, err := config.Load(cCtx.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("ERROR: %v", err), 1)
	}

	fmt.Printf("ok: %d channel(s)\n", len(cfg.Channels))

	return nil
}

func showMask(cCtx *cli.Context) error {
	if cCtx.Args().Len() != 1 {
		_ = cli.ShowSubcommandHelp(cCtx)

		return cli.Exit("\nERROR: expected exactly one config path", 1)
	}

	cfg, err := config.Load(cCtx.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("ERROR: %v", err), 1)
	}

	catalog := syscalls.Load()

	for _, cc := range cfg.Channels {
		enablers, err := cc.Enablers()
		if err != nil {
			return cli.Exit(fmt.Sprintf("ERROR: channel %q: %v", cc.Name, err), 1)
		}

		// scratch channel: nothing attaches, nothing records
		ch := filter.NewChannel(zap.NewNop().Sugar(), catalog, probes.NewHub(), recorder.Nop{})

		if err := ch.Reconcile(enablers); err != nil {
			return cli.Exit(fmt.Sprintf("ERROR: channel %q: %v", cc.Name, err), 1)
		}

		fmt.Printf("channel %q:\n", cc.Name)
		printMask(ch.QueryMask(), catalog)
	}

	return nil
}

func printMask(mask []uint64, catalog *syscalls.Catalog) {
	table := catalog.Table(syscalls.NativeEntry)

	for nr := range table {
		if mask[nr/64]&(1<<(nr%64)) == 0 {
			continue
		}

		name := table[nr].Name
		if table[nr].Handler == syscalls.HandlerUnknown {
			continue
		}

		fmt.Printf("  %4d  %s\n", nr, name)
	}
}
