// seed-rfid provisions a demo receiving setup: items, one purchase order with
// its lines, an acting user and tag registrations for every line.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-rfid \
//	  -po PO-DEMO-1 -items "ITEM-A:10,ITEM-B:4" -tags-per-item 2 -location "Dock A"
//
// Prints the user id (send it as the scan `value`) and the generated EPCs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type itemSpec struct {
	number  string
	ordered decimal.Decimal
}

func parseItems(raw string) ([]itemSpec, error) {
	var out []itemSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		number, qty, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(number) == "" {
			return nil, fmt.Errorf("item %q: expected NUMBER:QTY", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(qty))
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("item %q: quantity must be a positive number", part)
		}
		out = append(out, itemSpec{number: strings.TrimSpace(number), ordered: d})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one item is required")
	}
	return out, nil
}

// splitQuantity divides total over n tags at 4 decimal places. The last tag
// takes the rounding remainder so the tags always add up to total.
func splitQuantity(total decimal.Decimal, n int) []decimal.Decimal {
	per := total.Div(decimal.NewFromInt(int64(n))).Truncate(4)
	out := make([]decimal.Decimal, n)
	assigned := decimal.Zero
	for i := 0; i < n-1; i++ {
		out[i] = per
		assigned = assigned.Add(per)
	}
	out[n-1] = total.Sub(assigned)
	return out
}

func newTagCode() string {
	return "E2" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:22]
}

func main() {
	poNumber := flag.String("po", "PO-DEMO-1", "Purchase order number")
	itemsRaw := flag.String("items", "ITEM-A:10,ITEM-B:4", "Comma list of ITEM:ORDERED_QTY")
	tagsPerItem := flag.Int("tags-per-item", 2, "Tag registrations per item line")
	lot := flag.String("lot", "LOT-1", "Lot number stamped on every tag")
	userName := flag.String("user", "Dock Reader", "Acting user name (created if missing)")
	location := flag.String("location", "Receiving Dock", "User location name")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before seeding")
	flag.Parse()

	items, err := parseItems(*itemsRaw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *tagsPerItem <= 0 {
		fmt.Fprintln(os.Stderr, "-tags-per-item must be positive")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if *migrate {
		models.MigrateTable()
	}

	ctx := context.Background()
	var (
		user models.User
		tags []models.TagRegistration
	)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			row := models.Item{ItemNumber: it.number, Description: "Demo " + it.number}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("item %s: %w", it.number, err)
			}
		}

		po := models.PurchaseOrder{OrderNumber: *poNumber}
		if err := tx.Where("order_number = ?", *poNumber).FirstOrCreate(&po).Error; err != nil {
			return fmt.Errorf("purchase order: %w", err)
		}
		if err := tx.Where("purchase_order_id = ?", po.ID).Delete(&models.PurchaseOrderDetail{}).Error; err != nil {
			return err
		}
		for _, it := range items {
			d := models.PurchaseOrderDetail{PurchaseOrderId: po.ID, ItemNumber: it.number, OrderedQty: it.ordered}
			if err := tx.Create(&d).Error; err != nil {
				return fmt.Errorf("purchase order line %s: %w", it.number, err)
			}
		}

		if err := tx.Where("name = ?", *userName).
			Attrs(models.User{LocationName: *location}).
			FirstOrCreate(&user).Error; err != nil {
			return fmt.Errorf("user: %w", err)
		}

		for _, it := range items {
			for _, qty := range splitQuantity(it.ordered, *tagsPerItem) {
				tags = append(tags, models.TagRegistration{
					Code:                newTagCode(),
					PurchaseOrderNumber: *poNumber,
					LotNumber:           *lot,
					ItemNumber:          it.number,
					Quantity:            qty,
				})
			}
		}
		return tx.Create(&tags).Error
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("purchase order %s seeded; user id=%d (%s @ %s)\n", *poNumber, user.ID, user.Name, user.LocationName)
	for _, t := range tags {
		fmt.Printf("  epc=%s item=%s qty=%s\n", t.Code, t.ItemNumber, t.Quantity.String())
	}
}
