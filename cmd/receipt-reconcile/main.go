// receipt-reconcile recomputes fulfillment status for every open purchase
// order (Pending/Partial) from its receipt ledger. Run after manual ledger
// repairs or as a periodic job.
//
// Usage:
//
//	go run ./cmd/receipt-reconcile            # all open orders
//	go run ./cmd/receipt-reconcile -po PO-1   # one order
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	poNumber := flag.String("po", "", "Optional: only this purchase order")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	r := workflow.NewReconciler(db, logger, nil)

	if po := strings.TrimSpace(*poNumber); po != "" {
		res, err := r.RecomputeOrder(ctx, po)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recompute %s failed: %v\n", po, err)
			os.Exit(1)
		}
		fmt.Printf("%s: status=%s changed=%t\n", po, res.Status, res.Changed)
		return
	}

	changed, err := r.ReconcileOpenOrders(ctx)
	logger.WithFields(logrus.Fields{
		"field":   "receipt-reconcile",
		"changed": changed,
	}).Info("reconcile finished")
	fmt.Printf("orders changed: %d\n", changed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "some orders failed: %v\n", err)
		os.Exit(2)
	}
}
