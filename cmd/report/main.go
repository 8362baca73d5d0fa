package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"polymarket-maker-go/config"
	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/order"
	"polymarket-maker-go/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dsn := flag.String("db", "", "覆盖配置中的数据库路径")
	limit := flag.Int("limit", 20, "最近成交条数")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	path := cfg.Store.DSN
	if *dsn != "" {
		path = *dsn
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no database configured (store.dsn)")
		os.Exit(1)
	}

	st, err := store.Open(path, cfg.Market.ConditionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开数据库失败: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	snap, err := st.LoadLatestSnapshot(ctx)
	if errors.Is(err, store.ErrNoSession) {
		fmt.Printf("no session recorded for market %s\n", cfg.Market.ConditionID)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取快照失败: %v\n", err)
		os.Exit(1)
	}

	ledger := inventory.NewLedger()
	ledger.Restore(snap)

	fmt.Printf("\nmarket %s — session since %s\n\n",
		cfg.Market.ConditionID, snap.CreatedAt.Format(time.RFC3339))

	printPosition(ledger)

	if summary, err := st.SummarizeFills(ctx); err == nil && len(summary) > 0 {
		printFillSummary(summary)
	}
	if recent, err := st.RecentFills(ctx, *limit); err == nil && len(recent) > 0 {
		printRecentFills(recent)
	}
}

func printPosition(ledger *inventory.Ledger) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Outcome", "Quantity", "Avg Cost", "Cost Basis")
	for _, outcome := range market.Outcomes() {
		q := ledger.Quantity(outcome)
		avg := ledger.AvgCost(outcome)
		table.Append(
			string(outcome),
			fmt.Sprintf("%.2f", q),
			fmt.Sprintf("%.4f", avg),
			fmt.Sprintf("$%.2f", q*avg),
		)
	}
	table.Render()

	fmt.Printf(`
  delta_q        %.2f
  pairs          %.2f
  paired cost    $%.2f
  locked profit  $%.4f
  realized pnl   $%.4f
  trades         %d
  volume         %.2f

`,
		ledger.DeltaQ(),
		ledger.PairedQuantity(),
		ledger.PairedCost(),
		ledger.LockedProfit(),
		ledger.RealizedPnL(),
		ledger.TotalTrades(),
		ledger.TotalVolume())
}

func printFillSummary(summary []store.FillSummary) {
	fmt.Println("fills by outcome/side:")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Outcome", "Side", "Fills", "Volume", "Notional")
	for _, fs := range summary {
		table.Append(
			fs.Outcome,
			fs.Side,
			fmt.Sprintf("%d", fs.Count),
			fmt.Sprintf("%.2f", fs.Volume),
			fmt.Sprintf("$%.2f", fs.Nominal),
		)
	}
	table.Render()
	fmt.Println()
}

func printRecentFills(fills []order.FillRecord) {
	fmt.Printf("last %d fills:\n", len(fills))
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Order", "Outcome", "Side", "Price", "Size")
	for _, f := range fills {
		table.Append(
			f.Timestamp.Format("2006-01-02 15:04:05"),
			shortID(f.OrderID),
			string(f.Outcome),
			string(f.Side),
			fmt.Sprintf("%.2f", f.Price),
			fmt.Sprintf("%.2f", f.Size),
		)
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}
