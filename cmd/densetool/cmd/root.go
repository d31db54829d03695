// Package cmd implements densetool, an operator CLI that inspects and edits packed dense sets in
// the backend configured through the DENSESET_* environment variables.
package cmd

import (
	"context"

	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/engine"
	"github.com/argus-labs/denseset/pkg/packed"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/telemetry"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

const serviceName = "densetool"

// flags shared by the set commands.
type setFlags struct {
	owner     string
	set       string
	caller    string
	layout    string
	namespace string
	stats     bool
}

// NewRootCmd returns the densetool root command. opts are merged over the environment config each
// time a command opens the engine.
func NewRootCmd(opts engine.Options) *cobra.Command {
	flags := &setFlags{}
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Inspect and edit packed dense sets",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.owner, "owner", "", "Owner address of the set (reads)")
	pf.StringVar(&flags.set, "set", "", "Set id as 0x-prefixed 32 byte hex")
	pf.StringVar(&flags.caller, "caller", "", "Address the write is made as")
	pf.StringVar(&flags.layout, "layout", packed.Uint64.Name(), "Element layout: u8, u16, u32, u48 or u64")
	pf.StringVar(&flags.namespace, "namespace", "", "Storage namespace, defaults to the layout name")
	pf.BoolVar(&flags.stats, "stats", false, "Log the set changes committed by the command to stderr")

	r := &runner{flags: flags, opts: opts}
	rootCmd.AddCommand(
		newDeriveCmd(),
		r.newLenCmd(),
		r.newAllCmd(),
		r.newAtCmd(),
		r.newRangeCmd(),
		r.newLastCmd(),
		r.newContainsCmd(),
		r.newWordsCmd(),
		r.newAddCmd(),
		r.newRemoveCmd(),
	)
	return rootCmd
}

// runner opens the engine and the selected store for the duration of one command.
type runner struct {
	flags *setFlags
	opts  engine.Options
}

type target struct {
	store *denseset.Store[uint64]
	owner setid.Owner
	id    setid.SetID
}

// run opens the engine, resolves the set named by the flags and calls fn with it. A write command
// needs a caller; a read command needs an owner.
func (r *runner) run(cmd *cobra.Command, write bool, fn func(ctx context.Context, t target) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	t, err := r.target(write)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(telemetry.Options{ServiceName: serviceName, LogWriter: cmd.ErrOrStderr()})
	if err != nil {
		return eris.Wrap(err, "failed to set up telemetry")
	}
	defer func() { _ = tel.Shutdown(ctx) }()

	opts := r.opts
	if opts.Logger == nil {
		logger := tel.GetLogger("engine")
		opts.Logger = &logger
	}
	if opts.Tracer == nil {
		opts.Tracer = tel.Tracer
	}

	e, err := engine.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close(ctx) }()

	layout, err := packed.ParseLayout(r.flags.layout)
	if err != nil {
		return err
	}
	var storeOpts []denseset.Option
	if r.flags.namespace != "" {
		storeOpts = append(storeOpts, denseset.WithNamespace(r.flags.namespace))
	}
	if t.store, err = engine.Fixed[uint64](e, layout, storeOpts...); err != nil {
		return err
	}

	if write {
		ctx = setid.WithCaller(ctx, t.owner)
	}
	out, err := fn(ctx, t)
	if err != nil {
		return err
	}
	if r.flags.stats {
		logStats(tel)
	}
	return printJSON(cmd, out)
}

func (r *runner) target(write bool) (target, error) {
	var t target
	id, err := setid.ParseSetID(r.flags.set)
	if err != nil {
		return t, eris.Wrap(err, "--set")
	}
	t.id = id

	who, flag := r.flags.owner, "--owner"
	if write {
		who, flag = r.flags.caller, "--caller"
	}
	if who == "" {
		return t, eris.Errorf("%s is required", flag)
	}
	if t.owner, err = setid.ParseOwner(who); err != nil {
		return t, eris.Wrap(err, flag)
	}
	return t, nil
}

// logStats logs the denseset counters the command's commits produced.
func logStats(tel *telemetry.Telemetry) {
	fields := make(map[string]any)
	for name, sum := range tel.Counters("denseset") {
		fields[name] = sum
	}
	tel.GetLogger("stats").Info().Fields(fields).Msg("committed set changes")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "failed to encode output")
}
