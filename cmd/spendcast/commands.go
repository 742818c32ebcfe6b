package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/spendcast/internal/models"
	"github.com/rewired-gh/spendcast/internal/monitor"
)

var (
	flagAt       string
	flagSave     bool
	flagName     string
	flagCategory string
	flagAmount   float64
	flagCurrency string
	flagStart    string
	flagEnd      string
	flagNote     string
)

var predictCmd = &cobra.Command{
	Use:   "predict <budget-id>",
	Short: "Forecast a budget's end-of-period spend",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredict,
}

var quoteCmd = &cobra.Command{
	Use:   "quote <BASE/QUOTE>",
	Short: "Fuse the configured rate sources for a currency pair",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

var convertCmd = &cobra.Command{
	Use:   "convert <amount> <FROM> <TO>",
	Short: "Convert an amount using the fused exchange rate",
	Args:  cobra.ExactArgs(3),
	RunE:  runConvert,
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage budgets",
}

var budgetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a budget",
	RunE:  runBudgetAdd,
}

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Manage spending records",
}

var spendAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an expense",
	RunE:  runSpendAdd,
}

func init() {
	predictCmd.Flags().StringVar(&flagAt, "at", "", "Evaluation instant (RFC3339, default now)")
	predictCmd.Flags().BoolVar(&flagSave, "save", false, "Store the forecast in the prediction history")

	budgetAddCmd.Flags().StringVar(&flagName, "name", "", "Budget name")
	budgetAddCmd.Flags().StringVar(&flagCategory, "category", "", "Spending category the budget covers")
	budgetAddCmd.Flags().Float64Var(&flagAmount, "amount", 0, "Budget amount")
	budgetAddCmd.Flags().StringVar(&flagCurrency, "currency", "CNY", "Budget currency")
	budgetAddCmd.Flags().StringVar(&flagStart, "start", "", "Period start (YYYY-MM-DD)")
	budgetAddCmd.Flags().StringVar(&flagEnd, "end", "", "Period end, inclusive (YYYY-MM-DD)")
	_ = budgetAddCmd.MarkFlagRequired("name")
	_ = budgetAddCmd.MarkFlagRequired("category")
	_ = budgetAddCmd.MarkFlagRequired("amount")
	_ = budgetAddCmd.MarkFlagRequired("start")
	_ = budgetAddCmd.MarkFlagRequired("end")

	spendAddCmd.Flags().StringVar(&flagCategory, "category", "", "Spending category")
	spendAddCmd.Flags().Float64Var(&flagAmount, "amount", 0, "Amount spent")
	spendAddCmd.Flags().StringVar(&flagAt, "at", "", "Time of the expense (RFC3339, default now)")
	spendAddCmd.Flags().StringVar(&flagNote, "note", "", "Free-form note")
	_ = spendAddCmd.MarkFlagRequired("category")
	_ = spendAddCmd.MarkFlagRequired("amount")

	budgetCmd.AddCommand(budgetAddCmd)
	spendCmd.AddCommand(spendAddCmd)
	rootCmd.AddCommand(predictCmd, quoteCmd, convertCmd, budgetCmd, spendCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	at, err := parseInstant(flagAt)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	budget, err := store.GetBudget(args[0])
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	mon := monitor.New(store, engine, monitor.DefaultConfig())
	result, err := mon.Evaluate(budget, at)
	if err != nil {
		return err
	}

	if flagSave {
		if err := store.SavePrediction(&models.Prediction{BudgetID: budget.ID, Result: result, EvaluatedAt: at}); err != nil {
			return err
		}
	}
	return printJSON(result)
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	q, err := newQuoteService(cfg).Quote(args[0])
	if err != nil {
		return err
	}
	return printJSON(q)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}
	c, err := newQuoteService(cfg).Convert(args[1], args[2], amount)
	if err != nil {
		return err
	}
	return printJSON(c)
}

func runBudgetAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	start, err := time.Parse(time.DateOnly, flagStart)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse(time.DateOnly, flagEnd)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	b := &models.Budget{
		Name:      flagName,
		Category:  flagCategory,
		Amount:    flagAmount,
		Currency:  flagCurrency,
		StartDate: start,
		EndDate:   end.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
	if err := store.AddBudget(b); err != nil {
		return err
	}
	return printJSON(b)
}

func runSpendAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	at, err := parseInstant(flagAt)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	r := &models.SpendingRecord{
		Category: flagCategory,
		Amount:   flagAmount,
		SpentAt:  at,
		Note:     flagNote,
	}
	if err := store.AddSpending(r); err != nil {
		return err
	}
	return printJSON(r)
}
