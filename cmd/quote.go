package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scamlens/scamlens/internal/cost"
)

var quoteTokens int

var quoteCmd = &cobra.Command{
	Use:   "quote <model>",
	Short: "Quote the cost of a token count against a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := initRegistry()
		if err != nil {
			return err
		}

		calc := cost.NewCalculator(reg)
		quote, err := calc.Cost(args[0], quoteTokens)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d tokens -> $%.6f\n", args[0], quoteTokens, quote)
		return nil
	},
}

func init() {
	quoteCmd.Flags().IntVar(&quoteTokens, "tokens", 1000, "token count to quote")
	rootCmd.AddCommand(quoteCmd)
}
