package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/javajack/xlpivot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEvalCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "eval [formula...]",
		Short: "Evaluate pivot formulas",
		Long: `Evaluate each formula argument and print its value, or with --input
evaluate every pivot formula of a workbook and write the values to --output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input != "" {
				return evalWorkbook(cmd, input, output)
			}
			if len(args) == 0 {
				return errors.New("eval: a formula or --input is required")
			}
			s, err := newSession(configPath, nil)
			if err != nil {
				return err
			}
			defer s.logger.Sync()
			for _, formula := range args {
				v, err := s.evaluate(cmd.Context(), formula)
				if err != nil {
					return fmt.Errorf("%s: %w", formula, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), xlpivot.FormatScalar(v))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Workbook to evaluate")
	cmd.Flags().StringVarP(&output, "output", "o", "values.xlsx", "Output workbook of evaluated values")
	return cmd
}

func evalWorkbook(cmd *cobra.Command, input, output string) error {
	doc, err := xlpivot.OpenWorkbook(input)
	if err != nil {
		return err
	}
	s, err := newSession(configPath, doc)
	if err != nil {
		return err
	}
	defer s.logger.Sync()
	ctx := cmd.Context()
	if err := s.evaluator.EvaluateDocument(ctx, doc); err != nil {
		s.logger.Warn("some formulas failed", zap.Error(err))
	}
	s.pivots.WaitLabels()
	if err := s.evaluator.EvaluateDocument(ctx, doc); err != nil {
		s.logger.Warn("some formulas failed", zap.Error(err))
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := xlpivot.WriteValues(doc, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
	return nil
}

func newAutofillCmd() *cobra.Command {
	var (
		direction string
		increment int
	)
	cmd := &cobra.Command{
		Use:   "autofill <formula>",
		Short: "Print the formula an autofill drag produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir xlpivot.Direction
			switch direction {
			case "row":
				dir = xlpivot.DirectionRow
			case "column", "col":
				dir = xlpivot.DirectionColumn
			default:
				return fmt.Errorf("autofill: unknown direction %q", direction)
			}
			s, err := newSession(configPath, nil)
			if err != nil {
				return err
			}
			defer s.logger.Sync()
			next, err := s.evaluator.NextAutofillValue(cmd.Context(), args[0], dir, increment)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "row", "Drag direction: row or column")
	cmd.Flags().IntVarP(&increment, "increment", "n", 1, "Number of cells moved")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [pivot-id...]",
		Short: "Print the row and column layout of pivots",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(configPath, nil)
			if err != nil {
				return err
			}
			defer s.logger.Sync()
			ids, err := pivotIDs(s, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				c, err := s.pivots.Cache(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), xlpivot.Describe(c))
			}
			return nil
		},
	}
}

func newInsertCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "insert [pivot-id...]",
		Short: "Write pivots as formula tables into a new workbook",
		Long: `Insert every pivot (or the given ones) into its own sheet of a new
workbook. Cells hold PIVOT and PIVOT.HEADER formulas.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(configPath, nil)
			if err != nil {
				return err
			}
			defer s.logger.Sync()
			ids, err := pivotIDs(s, args)
			if err != nil {
				return err
			}
			doc := xlpivot.NewDocument()
			for _, id := range ids {
				c, err := s.pivots.Cache(cmd.Context(), id)
				if err != nil {
					return err
				}
				sheet := xlpivot.SafeSheetName(fmt.Sprintf("Pivot #%d", id))
				area := xlpivot.InsertPivot(doc, sheet, xlpivot.CellRef{}, c)
				s.logger.Info("inserted pivot", zap.Int("pivot", id), zap.Stringer("area", area))
			}
			if err := xlpivot.SaveWorkbook(doc, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "pivots.xlsx", "Output workbook")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Convert workbooks to and from reusable templates",
	}
	cmd.AddCommand(
		templateSubcommand("export", "Replace record ids with PIVOT.POSITION calls", xlpivot.ExportTemplate),
		templateSubcommand("import", "Resolve PIVOT.POSITION calls against the current data", xlpivot.ImportTemplate),
	)
	return cmd
}

func templateSubcommand(use, short string, convert func(*xlpivot.Document, xlpivot.Caches) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <input.xlsx> <output.xlsx>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := xlpivot.OpenWorkbook(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(configPath, doc)
			if err != nil {
				return err
			}
			defer s.logger.Sync()
			caches, err := s.pivots.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			if err := convert(doc, caches); err != nil {
				s.logger.Warn("some cells were not converted", zap.Error(err))
			}
			if err := xlpivot.SaveWorkbook(doc, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <input.xlsx>",
		Short: "Validate the pivot formulas of a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := xlpivot.OpenWorkbook(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(configPath, doc)
			if err != nil {
				return err
			}
			defer s.logger.Sync()
			caches, err := s.pivots.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			issues := xlpivot.Validate(doc, caches)
			errCount := 0
			for _, issue := range issues {
				fmt.Fprintln(cmd.OutOrStdout(), issue)
				if issue.Severity == xlpivot.SeverityError {
					errCount++
				}
			}
			if err := s.evaluator.EvaluateDocument(cmd.Context(), doc); err != nil {
				s.logger.Debug("evaluate for usage", zap.Error(err))
			}
			for _, id := range s.pivots.IDs() {
				c, ok := caches[id]
				if !ok {
					continue
				}
				values, headers := len(c.MissingValueDomains()), len(c.MissingHeaderDomains())
				if values > 0 || headers > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "[INFO] pivot %d: %d value cell(s) and %d header(s) not referenced by any formula\n", id, values, headers)
				}
			}
			if errCount > 0 {
				return fmt.Errorf("%d error(s) found", errCount)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d issue(s), no errors\n", len(issues))
			return nil
		},
	}
}

// pivotIDs parses id arguments, defaulting to every registered pivot.
func pivotIDs(s *session, args []string) ([]int, error) {
	if len(args) == 0 {
		return s.pivots.IDs(), nil
	}
	ids := make([]int, len(args))
	for i, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pivot id %q", arg)
		}
		ids[i] = id
	}
	return ids, nil
}
