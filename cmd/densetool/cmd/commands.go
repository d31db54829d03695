package cmd

import (
	"context"
	"fmt"

	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

type setOutput struct {
	Set string `json:"set"`
}

type lengthOutput struct {
	Length uint64 `json:"length"`
}

type valuesOutput struct {
	Values []uint64 `json:"values"`
}

type elementOutput struct {
	Index   uint64 `json:"index"`
	Value   uint64 `json:"value"`
	Present bool   `json:"present"`
}

type wordsOutput struct {
	Words uint64 `json:"words"`
}

type changeOutput struct {
	Value   uint64 `json:"value"`
	Applied bool   `json:"applied"`
}

func newDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive <tag> [params...]",
		Short: "Derive a set id from a tag and parameters",
		Long: `Derive a set id the way the ecs and inventory packages do. Numeric params are hashed as
uint256 words, 20 byte hex params as addresses and anything else as a string.`,
		Example: fmt.Sprintf("%s derive ecs.components.fwd 42", serviceName),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				params = append(params, parseParam(arg))
			}
			return printJSON(cmd, setOutput{Set: setid.Derive(args[0], params...).Hex()})
		},
	}
}

func parseParam(arg string) any {
	if v, err := cast.ToUint64E(arg); err == nil {
		return v
	}
	if common.IsHexAddress(arg) {
		return common.HexToAddress(arg)
	}
	return arg
}

func (r *runner) newLenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "len",
		Short: "Print the number of elements of a set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				n, err := t.store.Len(ctx, t.owner, t.id)
				return lengthOutput{Length: n}, err
			})
		},
	}
}

func (r *runner) newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Print every element of a set in position order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				values, err := t.store.GetAll(ctx, t.owner, t.id)
				return valuesOutput{Values: values}, err
			})
		},
	}
}

func (r *runner) newAtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "at <index>",
		Short: "Print the element at a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseUint(args[0], "index")
			if err != nil {
				return err
			}
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				v, err := t.store.At(ctx, t.owner, t.id, index)
				return elementOutput{Index: index, Value: v, Present: err == nil}, err
			})
		},
	}
}

func (r *runner) newRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range <start> <count>",
		Short: "Print up to count elements starting at a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseUint(args[0], "start")
			if err != nil {
				return err
			}
			count, err := parseUint(args[1], "count")
			if err != nil {
				return err
			}
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				values, err := t.store.GetFrom(ctx, t.owner, t.id, start, count)
				return valuesOutput{Values: values}, err
			})
		},
	}
}

func (r *runner) newLastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last <count>",
		Short: "Print the last count elements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseUint(args[0], "count")
			if err != nil {
				return err
			}
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				values, err := t.store.GetLast(ctx, t.owner, t.id, count)
				return valuesOutput{Values: values}, err
			})
		},
	}
}

func (r *runner) newContainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contains <value>",
		Short: "Report whether a value is in a set and at which position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseUint(args[0], "value")
			if err != nil {
				return err
			}
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				pos, err := t.store.Position(ctx, t.owner, t.id, v)
				return elementOutput{Index: pos.Index, Value: v, Present: pos.Present}, err
			})
		},
	}
}

func (r *runner) newWordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "words",
		Short: "Print the number of storage words a set holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, false, func(ctx context.Context, t target) (any, error) {
				n, err := t.store.WordCount(ctx, t.owner, t.id)
				return wordsOutput{Words: n}, err
			})
		},
	}
}

func (r *runner) newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <value>...",
		Short: "Add values to the caller's set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args)
			if err != nil {
				return err
			}
			return r.run(cmd, true, func(ctx context.Context, t target) (any, error) {
				changes, err := t.store.AddBatch(ctx, t.id, values)
				return toChangeOutput(changes), err
			})
		},
	}
}

func (r *runner) newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <value>...",
		Short: "Swap-remove values from the caller's set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args)
			if err != nil {
				return err
			}
			return r.run(cmd, true, func(ctx context.Context, t target) (any, error) {
				changes, err := t.store.RemoveBatch(ctx, t.id, values)
				return toChangeOutput(changes), err
			})
		},
	}
}

func parseUint(arg, name string) (uint64, error) {
	v, err := cast.ToUint64E(arg)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s %q", name, arg)
	}
	return v, nil
}

func parseValues(args []string) ([]uint64, error) {
	values := make([]uint64, len(args))
	for i, arg := range args {
		v, err := parseUint(arg, "value")
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func toChangeOutput(changes []denseset.Change[uint64]) []changeOutput {
	out := make([]changeOutput, len(changes))
	for i, c := range changes {
		out[i] = changeOutput{Value: c.Value, Applied: c.Applied}
	}
	return out
}
