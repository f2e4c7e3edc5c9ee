// Command admin inspects and remediates the delivery queue: listing
// parked jobs, exporting the audit trail and re-enqueueing a parked job
// after the underlying problem is fixed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"rezerva/internal/config"
	"rezerva/internal/database"
	"rezerva/internal/export"
	"rezerva/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	listFailed := flag.Bool("list-failed", false, "list parked delivery jobs")
	exportAudit := flag.Bool("export", false, "export audit trail and parked jobs to xlsx")
	requeue := flag.Int64("requeue", 0, "re-enqueue a parked job by id")
	attempts := flag.String("attempts", "", "show delivery attempts for a transaction id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	switch {
	case *listFailed:
		return printFailed(ctx, db)
	case *exportAudit:
		exporter := export.NewExporter(db, db, cfg.Exports.Path)
		path, err := exporter.ExportAudit(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("audit exported to %s\n", path)
		return nil
	case *requeue != 0:
		if err := db.RequeueDeliveryJob(ctx, *requeue); err != nil {
			return err
		}
		fmt.Printf("job %d re-enqueued\n", *requeue)
		return nil
	case *attempts != "":
		return printAttempts(ctx, db, *attempts)
	default:
		flag.Usage()
		return nil
	}
}

func printFailed(ctx context.Context, db *database.DB) error {
	jobs, err := db.GetFailedDeliveryJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no parked jobs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRANSACTION\tRESERVATION\tATTEMPTS\tLAST ERROR")
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = *j.LastError
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", j.ID, j.TransactionID, j.ReservationNumber, j.AttemptCount, lastErr)
	}
	return w.Flush()
}

func printAttempts(ctx context.Context, db *database.DB, transactionID string) error {
	attempts, err := db.GetAttemptsByTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("no attempts recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHANNEL\tRECIPIENT\tSTATUS\tMESSAGE\tAT")
	for _, a := range attempts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Channel, a.Recipient, a.Status, a.Message, a.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
