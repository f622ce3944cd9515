package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/dispatch/internal/backend/cpu"
	"github.com/born-ml/dispatch/internal/device"
	"github.com/born-ml/dispatch/internal/envconfig"
	"github.com/born-ml/dispatch/internal/kernels"
	"github.com/born-ml/dispatch/internal/scheduler"
	"github.com/born-ml/dispatch/internal/tensor"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dispatchplan",
		Short:         "Inspect dispatch grids and reduction plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	planCmd := &cobra.Command{
		Use:     "plan N",
		Short:   "Show the dispatch grid for N elements",
		Example: "  dispatchplan plan 10000000 --threads 64 --ept 4",
		Args:    cobra.ExactArgs(1),
		RunE:    PlanHandler,
	}
	planCmd.Flags().Int("threads", 64, "Threads per work group")
	planCmd.Flags().Int("ept", 1, "Elements per thread")
	planCmd.Flags().Int("limit", scheduler.DefaultDispatchLimit, "Maximum groups per dispatch axis")

	reduceCmd := &cobra.Command{
		Use:     "reduce SHAPE AXES",
		Short:   "Show the segments of a reduction",
		Example: "  dispatchplan reduce 2,3,4,5,6 0,1,4",
		Args:    cobra.ExactArgs(2),
		RunE:    ReduceHandler,
	}

	simulateCmd := &cobra.Command{
		Use:     "simulate OP SHAPE AXES",
		Short:   "Run a reduction on the host device and list the dispatched kernels",
		Example: "  dispatchplan simulate Mean 4,100000 1 --budget 256",
		Args:    cobra.ExactArgs(3),
		RunE:    SimulateHandler,
	}
	simulateCmd.Flags().Int("budget", kernels.DefaultThreadBudget, "Threads per reduction group")
	simulateCmd.Flags().Int("limit", scheduler.DefaultDispatchLimit, "Maximum groups per dispatch axis")
	simulateCmd.Flags().Bool("recorded", false, "Record dispatches and submit once")
	simulateCmd.Flags().Bool("keepdim", false, "Keep reduced axes with length 1")
	simulateCmd.Flags().Uint64("seed", 1, "Random input seed")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dispatchplan %s\n", version)
		},
	}

	rootCmd.AddCommand(planCmd, reduceCmd, simulateCmd, envCmd, versionCmd)
	return rootCmd
}

// PlanHandler prints the grid chosen for a flat dispatch.
func PlanHandler(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return errors.Errorf("invalid element count %q", args[0])
	}
	threads, _ := cmd.Flags().GetInt("threads")
	ept, _ := cmd.Flags().GetInt("ept")
	limit, _ := cmd.Flags().GetInt("limit")
	if threads <= 0 || ept <= 0 || limit <= 0 {
		return errors.New("--threads, --ept and --limit must be positive")
	}

	plan := scheduler.DispatchPlanner{Limit: limit}.PlanThreads(n, threads, ept)
	gx, gy, gz := plan.Groups()
	data := [][]string{
		{"elements", humanize.Comma(int64(n))},
		{"groups", fmt.Sprintf("%d x %d x %d", gx, gy, gz)},
		{"threads", humanize.Comma(int64(plan.Threads()))},
		{"max index", humanize.Comma(int64(plan.MaxIndex))},
		{"split", strconv.FormatBool(plan.Split)},
		{"over limit", strconv.FormatBool(plan.OverLimit)},
	}
	renderTable(cmd.OutOrStdout(), nil, data)
	return nil
}

// ReduceHandler prints the segments a reduction is split into.
func ReduceHandler(cmd *cobra.Command, args []string) error {
	shape, err := parseShape(args[0])
	if err != nil {
		return err
	}
	axes, err := parseInts(args[1])
	if err != nil {
		return errors.WithMessage(err, "axes")
	}
	if axes, err = checkAxes(shape, axes); err != nil {
		return err
	}

	var data [][]string
	for i, seg := range scheduler.PlanReduction(shape, axes) {
		data = append(data, []string{
			strconv.Itoa(i),
			strconv.Itoa(seg.Outer), strconv.Itoa(seg.Reduce), strconv.Itoa(seg.Inner),
			seg.Input.String(), seg.Output.String(),
			yesNo(seg.Initial), yesNo(seg.Final),
		})
	}
	if len(data) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to reduce")
		return nil
	}
	renderTable(cmd.OutOrStdout(),
		[]string{"SEGMENT", "OUTER", "REDUCE", "INNER", "INPUT", "OUTPUT", "INITIAL", "FINAL"}, data)
	return nil
}

// SimulateHandler runs a reduction on the host device and prints every dispatch.
func SimulateHandler(cmd *cobra.Command, args []string) error {
	op, ok := kernels.ParseReduceOp(args[0])
	if !ok {
		return errors.Errorf("unknown reduction %q", args[0])
	}
	shape, err := parseShape(args[1])
	if err != nil {
		return err
	}
	axes, err := parseInts(args[2])
	if err != nil {
		return errors.WithMessage(err, "axes")
	}
	if axes, err = checkAxes(shape, axes); err != nil {
		return err
	}
	budget, _ := cmd.Flags().GetInt("budget")
	limit, _ := cmd.Flags().GetInt("limit")
	recorded, _ := cmd.Flags().GetBool("recorded")
	keepDim, _ := cmd.Flags().GetBool("keepdim")
	seed, _ := cmd.Flags().GetUint64("seed")

	cfg := scheduler.ConfigFromEnv()
	if cmd.Flags().Changed("budget") {
		cfg.ThreadBudget = budget
	}
	if cmd.Flags().Changed("limit") {
		cfg.DispatchLimit = limit
	}
	if recorded {
		cfg.Mode = device.Recorded
	}

	dev := cpu.New()
	dev.SetTracing(true)
	s := scheduler.New(dev, cfg)

	rng := rand.New(rand.NewPCG(seed, seed))
	values := make([]float32, shape.NumElements())
	for i := range values {
		values[i] = rng.Float32()
	}
	x, err := cpu.FromSlice(dev, shape, tensor.Float32, values)
	if err != nil {
		return err
	}
	o, err := cpu.Zeros(dev, shape.Reduced(axes, keepDim), tensor.Float32)
	if err != nil {
		return err
	}
	if err := s.Reduce(op, x, o, axes, keepDim); err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}

	var data [][]string
	for i, c := range dev.Trace() {
		data = append(data, []string{
			strconv.Itoa(i), c.Kernel.Name,
			fmt.Sprintf("%d x %d x %d", c.Groups[0], c.Groups[1], c.Groups[2]),
			paramSummary(&c),
		})
	}
	out := cmd.OutOrStdout()
	renderTable(out, []string{"#", "KERNEL", "GROUPS", "PARAMS"}, data)

	result := cpu.ToSlice[float32](o)
	fmt.Fprintf(out, "\noutput %s (%s elements)", o.Shape(), humanize.Comma(int64(len(result))))
	if len(result) > 0 {
		fmt.Fprintf(out, ", first %g", result[0])
	}
	fmt.Fprintf(out, "\nscratch: %s\n", s.Pool().Stats())
	return nil
}

// EnvHandler prints the environment variables the scheduler reads.
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var data [][]string
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
	}
	renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	return nil
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func paramSummary(c *device.Command) string {
	var parts []string
	for slot, p := range c.Params {
		switch v := p.(type) {
		case nil:
		case device.Vec:
			// Registers are noisy; the grid already says enough.
		case device.Uint:
			parts = append(parts, fmt.Sprintf("%s=%d", kernels.Slot(slot), uint32(v)))
		case device.Int:
			parts = append(parts, fmt.Sprintf("%s=%d", kernels.Slot(slot), int32(v)))
		case device.Float:
			parts = append(parts, fmt.Sprintf("%s=%g", kernels.Slot(slot), float32(v)))
		}
	}
	return strings.Join(parts, " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

// parseInts parses a comma-separated list such as "0,-1,2".
func parseInts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Errorf("invalid integer %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseShape(s string) (tensor.Shape, error) {
	dims, err := parseInts(s)
	if err != nil {
		return nil, errors.WithMessage(err, "shape")
	}
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return shape, nil
}

// checkAxes reports axes the planner would reject and returns them normalized.
func checkAxes(shape tensor.Shape, axes []int) ([]int, error) {
	for _, a := range axes {
		if a < -shape.Rank() || a >= shape.Rank() {
			return nil, errors.Errorf("axis %d out of range for rank %d", a, shape.Rank())
		}
	}
	axes = scheduler.NormalizeAxes(shape, axes)
	check := axes
	if len(check) == 0 {
		check = make([]int, shape.Rank())
		for i := range check {
			check[i] = i
		}
	}
	for _, a := range check {
		if shape[a] == 0 {
			return nil, errors.Errorf("cannot reduce empty axis %d of %s", a, shape)
		}
	}
	return axes, nil
}
