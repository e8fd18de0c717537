package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/pricing"
)

// priceInput is the offline estimator's input file format. Word counts are
// per page, matching what the analysis pipeline reports.
type priceInput struct {
	LanguageMultiplier string `json:"language_multiplier,omitempty"`
	Turnaround         string `json:"turnaround,omitempty"`
	DeliveryFee        string `json:"delivery_fee,omitempty"`
	TaxRate            string `json:"tax_rate,omitempty"`
	Documents          []struct {
		ID         string `json:"id"`
		Complexity string `json:"complexity,omitempty"`
		WordCounts []int  `json:"word_counts"`
	} `json:"documents"`
	Certifications []struct {
		Quantity  int    `json:"quantity"`
		UnitPrice string `json:"unit_price"`
	} `json:"certifications,omitempty"`
}

var priceCmd = &cobra.Command{
	Use:   "price <input.json>",
	Short: "Price a quote offline from a JSON description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("price"); err != nil {
			return err
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		var in priceInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return eris.Wrap(err, "parse input")
		}
		if len(in.Documents) == 0 {
			return eris.New("input has no documents")
		}

		rates, err := cfg.Rates()
		if err != nil {
			return eris.Wrap(err, "build pricing rates")
		}

		multiplier := decimal.NewFromInt(1)
		if in.LanguageMultiplier != "" {
			multiplier, err = decimal.NewFromString(in.LanguageMultiplier)
			if err != nil {
				return eris.Wrap(err, "parse language_multiplier")
			}
		}

		calcIn := pricing.Input{
			Turnaround: model.TurnaroundStandard,
			Rates:      rates,
		}
		if in.Turnaround != "" {
			calcIn.Turnaround = model.TurnaroundType(in.Turnaround)
		}
		if in.DeliveryFee != "" {
			calcIn.DeliveryFee, err = decimal.NewFromString(in.DeliveryFee)
			if err != nil {
				return eris.Wrap(err, "parse delivery_fee")
			}
		}
		if in.TaxRate != "" {
			calcIn.TaxRate, err = decimal.NewFromString(in.TaxRate)
			if err != nil {
				return eris.Wrap(err, "parse tax_rate")
			}
		}

		var warnings []pricing.Warning
		for i, d := range in.Documents {
			complexity := model.ComplexityMedium
			if d.Complexity != "" {
				complexity = model.ComplexityLevel(d.Complexity)
			}
			doc := model.Document{ID: d.ID, Complexity: complexity}
			if doc.ID == "" {
				doc.ID = fmt.Sprintf("doc-%d", i+1)
			}
			for n, words := range d.WordCounts {
				doc.Pages = append(doc.Pages, model.Page{Number: n + 1, WordCount: words})
			}

			pages, docWarnings, err := pricing.DocumentPages(doc, rates)
			if err != nil {
				return eris.Wrapf(err, "document %s", doc.ID)
			}
			warnings = append(warnings, docWarnings...)
			calcIn.Documents = append(calcIn.Documents, pricing.DocumentInput{
				DocumentID:         doc.ID,
				BillablePages:      pages,
				LanguageMultiplier: multiplier,
			})
		}

		for _, c := range in.Certifications {
			price, err := decimal.NewFromString(c.UnitPrice)
			if err != nil {
				return eris.Wrap(err, "parse certification unit_price")
			}
			calcIn.Certifications = append(calcIn.Certifications, pricing.CertificationLine{
				Quantity:  c.Quantity,
				UnitPrice: price,
			})
		}

		breakdown, err := pricing.Calculate(calcIn)
		if err != nil {
			return err
		}

		out := map[string]any{"breakdown": breakdown}
		if len(warnings) > 0 {
			out["warnings"] = warnings
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
}
