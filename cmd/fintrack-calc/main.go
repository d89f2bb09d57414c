// Command fintrack-calc runs the finance calculators offline.
//
// Commands:
//
//	period     Print the financial period containing a date
//	periods    List the selectable periods around a date
//	invoice    Print the statement period of a card expense
//	reserve    Project a reserve ledger read from CSV
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/invoice"
	"fintrack/internal/period"
	"fintrack/internal/reserve"
)

const outputLayout = "2006-01-02 15:04:05.000"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "period":
		err = runPeriod(os.Stdout, os.Args[2:])
	case "periods":
		err = runPeriods(os.Stdout, os.Args[2:])
	case "invoice":
		err = runInvoice(os.Stdout, os.Args[2:])
	case "reserve":
		err = runReserve(os.Stdout, os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fintrack-calc <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  period     --start-day 5 [--date 2025-07-10]")
	fmt.Fprintln(w, "  periods    --start-day 5 [--range 6] [--locale pt-BR] [--date 2025-07-10]")
	fmt.Fprintln(w, "  invoice    --date 2025-07-25 --closing-day 20")
	fmt.Fprintln(w, "  reserve    --ledger ledger.csv --rate 0.01 [--start 2025-01-01 --end 2025-01-31]")
	fmt.Fprintln(w, "             [--start-day 1] [--json] [--chart out.png --goal 5000]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ledger rows are date,type,amount with type add or withdraw.")
}

// parseDay parses a YYYY-MM-DD date, or returns today for an empty string.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.StartOfDay(time.Now()), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, core.InvalidArgument("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

func printPeriod(w io.Writer, p core.Period) {
	fmt.Fprintf(w, "start: %s\nend:   %s\n", p.Start.Format(outputLayout), p.End.Format(outputLayout))
}

func runPeriod(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("period", flag.ContinueOnError)
	startDay := fs.Int("start-day", 1, "first day of the financial month (1-31)")
	date := fs.String("date", "", "reference date, default today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now, err := parseDay(*date)
	if err != nil {
		return err
	}
	p, err := period.Current(now, *startDay)
	if err != nil {
		return err
	}
	printPeriod(w, p)
	return nil
}

func runPeriods(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("periods", flag.ContinueOnError)
	startDay := fs.Int("start-day", 1, "first day of the financial month (1-31)")
	rng := fs.Int("range", period.DefaultRange, "months listed on each side of the date")
	locale := fs.String("locale", period.DefaultLocale, "label locale")
	date := fs.String("date", "", "reference date, default today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now, err := parseDay(*date)
	if err != nil {
		return err
	}
	opts, err := period.Enumerate(now, *startDay, *rng, *locale)
	if err != nil {
		return err
	}
	for _, o := range opts {
		fmt.Fprintf(w, "%s\t%s\t%s .. %s\n", o.Value, o.Label,
			o.Start.Format(time.DateOnly), o.End.Format(time.DateOnly))
	}
	return nil
}

func runInvoice(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("invoice", flag.ContinueOnError)
	date := fs.String("date", "", "expense date, default today")
	closingDay := fs.Int("closing-day", 0, "card closing day (1-31)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := parseDay(*date)
	if err != nil {
		return err
	}
	p, err := invoice.Resolve(d, *closingDay)
	if err != nil {
		return err
	}
	printPeriod(w, p)
	return nil
}

func runReserve(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("reserve", flag.ContinueOnError)
	ledgerPath := fs.String("ledger", "", "CSV ledger of date,type,amount")
	rate := fs.Float64("rate", 0, "monthly yield rate, 0.01 for 1%")
	start := fs.String("start", "", "first projected day")
	end := fs.String("end", "", "last projected day")
	startDay := fs.Int("start-day", 1, "financial month start day used when no window is given")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	chartPath := fs.String("chart", "", "write a PNG chart to this path")
	goal := fs.Float64("goal", 0, "goal line drawn on the chart")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ledgerPath == "" {
		return core.InvalidArgument("--ledger is required")
	}

	f, err := os.Open(*ledgerPath)
	if err != nil {
		return err
	}
	defer f.Close()
	txs, err := readLedger(f)
	if err != nil {
		return err
	}

	p, err := window(*start, *end, *startDay)
	if err != nil {
		return err
	}
	res, err := reserve.Project(txs, p, *rate)
	if err != nil {
		return err
	}

	if *chartPath != "" {
		png, err := export.RenderReserveChart("Reserve", p, res, *goal)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*chartPath, png, 0o644); err != nil {
			return err
		}
	}

	if *asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, pt := range res.Points {
		fmt.Fprintf(w, "%s\t%.2f\n", pt.Date, pt.Balance)
	}
	fmt.Fprintf(w, "last daily yield: %.4f\n", res.LastDailyYield)
	return nil
}

// window returns the projection window from explicit bounds, or the current
// financial period when both are empty.
func window(start, end string, startDay int) (core.Period, error) {
	if start == "" && end == "" {
		return period.Current(time.Now(), startDay)
	}
	if start == "" || end == "" {
		return core.Period{}, core.InvalidArgument("--start and --end must be given together")
	}
	s, err := parseDay(start)
	if err != nil {
		return core.Period{}, err
	}
	e, err := parseDay(end)
	if err != nil {
		return core.Period{}, err
	}
	p := core.NewPeriod(s, e)
	return p, p.Validate()
}
