package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("rfid-reconcile")

const publishTimeout = 5 * time.Second

// ActorRef is the scan's `value` field. Readers send it either as a JSON
// string or a bare number.
type ActorRef string

func (a *ActorRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = ActorRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("value must be a string or a number")
	}
	*a = ActorRef(n.String())
	return nil
}

func (a ActorRef) UserId() (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(string(a)))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("value %q is not a user id: %w", string(a), utils.ErrBadRequest)
	}
	return id, nil
}

// ScanRequest is one read reported by a handheld or fixed reader.
type ScanRequest struct {
	EPC       string   `json:"epc" validate:"required"`
	RSSI      *float64 `json:"rssi"`
	Count     *int     `json:"count"`
	Timestamp string   `json:"timestamp"`
	DeviceId  string   `json:"deviceId"`
	Value     ActorRef `json:"value" validate:"required"`
}

// validate normalizes the request and returns the acting user id.
func (r *ScanRequest) validate() (int, error) {
	r.EPC = strings.TrimSpace(r.EPC)
	r.Value = ActorRef(strings.TrimSpace(string(r.Value)))
	if err := utils.ValidateStruct(r); err != nil {
		return 0, err
	}
	return r.Value.UserId()
}

type ScanResult struct {
	Tag              ResolvedTag                `json:"tag"`
	Entry            models.LedgerEntry         `json:"ledger_entry"`
	Duplicate        bool                       `json:"duplicate"`
	ReceivedQty      decimal.Decimal            `json:"received_quantity"`
	OrderedQty       decimal.Decimal            `json:"ordered_quantity"`
	RemainingQty     decimal.Decimal            `json:"remaining_quantity"`
	Presence         models.PresenceState       `json:"presence"`
	PresenceDecision PresenceDecision           `json:"presence_decision"`
	Status           models.PurchaseOrderStatus `json:"po_status"`
	StatusChanged    bool                       `json:"po_status_changed"`
}

type TrackResult struct {
	Tag              ResolvedTag          `json:"tag"`
	Presence         models.PresenceState `json:"presence"`
	PresenceDecision PresenceDecision     `json:"presence_decision"`
}

// Reconciler runs scans through resolver, idempotency ledger, receipt ledger,
// presence tracker and fulfillment engine, then broadcasts what changed.
type Reconciler struct {
	db        *gorm.DB
	logger    *logrus.Logger
	publisher EventPublisher
	cache     TagCache
	clock     Clock
	cooldown  time.Duration
}

type Option func(*Reconciler)

func WithClock(c Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

func WithCooldown(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.cooldown = d
		}
	}
}

func WithTagCache(c TagCache) Option {
	return func(r *Reconciler) { r.cache = c }
}

func NewReconciler(db *gorm.DB, logger *logrus.Logger, publisher EventPublisher, opts ...Option) *Reconciler {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	r := &Reconciler{
		db:        db,
		logger:    logger,
		publisher: publisher,
		clock:     realClock{},
		cooldown:  config.DefaultPresenceCooldown,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Cooldown() time.Duration { return r.cooldown }

// ProcessScan is the receiving pipeline. Every store mutation for the scan
// commits or rolls back together; broadcasts go out only after commit.
//
// Lock order is receipt (per purchase order) then presence (per tag). Both are
// held on the pinned connection until the transaction has finished.
func (r *Reconciler) ProcessScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.ProcessScan")
	defer span.End()

	userId, err := req.validate()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("rfid.epc", req.EPC), attribute.Int("rfid.user_id", userId))
	now := r.clock.Now().UTC()

	var (
		result *ScanResult
		events []Event
	)
	err = retryOnDeadlock(ctx, func() error {
		result, events = nil, nil
		return withPinnedConn(ctx, r.db, func(conn *gorm.DB) error {
			tag, err := ResolveTagCode(ctx, conn, r.cache, req.EPC)
			if err != nil {
				return err
			}
			if err := AcquireReceiptLock(conn, tag.PurchaseOrderNumber); err != nil {
				return err
			}
			defer ReleaseReceiptLock(conn, tag.PurchaseOrderNumber)
			if err := AcquirePresenceLock(conn, tag.Code); err != nil {
				return err
			}
			defer ReleasePresenceLock(conn, tag.Code)

			// Returning error triggers rollback; returning nil commits.
			return conn.Transaction(func(tx *gorm.DB) error {
				res, evs, err := r.reconcileScan(ctx, tx, tag, userId, now)
				if err != nil {
					return err
				}
				result, events = res, evs
				return nil
			})
		})
	})
	if err != nil {
		span.RecordError(err)
		r.logScanError(ctx, "ProcessScan", req, err)
		return nil, err
	}

	r.publish(ctx, events)
	return result, nil
}

func (r *Reconciler) reconcileScan(ctx context.Context, tx *gorm.DB, tag *ResolvedTag, userId int, now time.Time) (*ScanResult, []Event, error) {
	user, err := models.GetUserById(tx, userId)
	if err != nil {
		return nil, nil, err
	}
	po, err := models.GetPurchaseOrderByNumber(tx, tag.PurchaseOrderNumber)
	if err != nil {
		return nil, nil, err
	}
	item, err := models.GetItemByNumber(tx, tag.ItemNumber)
	if err != nil {
		return nil, nil, err
	}

	isNew, err := RecordIfNew(tx, tag.Code, item.ItemNumber, po.OrderNumber, tag.Quantity)
	if err != nil {
		return nil, nil, err
	}

	var applied *ApplyResult
	if isNew {
		applied, err = ApplyScan(tx, ScanLine{
			PurchaseOrder:   po,
			ItemNumber:      item.ItemNumber,
			ItemDescription: item.Description,
			TagCode:         tag.Code,
			LotNumber:       tag.LotNumber,
			Quantity:        tag.Quantity,
			UserId:          user.ID,
			ScannedAt:       now,
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		entries, err := models.GetReceiptLedgerEntries(tx, po.ID)
		if err != nil {
			return nil, nil, err
		}
		entry, ok := FindLedgerEntry(entries, item.ItemNumber, tag.Code)
		if !ok && r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"field":       "reconcileScan",
				"po_number":   po.OrderNumber,
				"item_number": item.ItemNumber,
				"epc":         tag.Code,
			}).Warn("idempotency record exists without a ledger entry; scan not counted")
		}
		applied = &ApplyResult{Entries: entries, Entry: entry}
	}

	presence, err := TrackPresence(tx, PresenceObservation{
		TagCode:             tag.Code,
		PurchaseOrderNumber: po.OrderNumber,
		ItemNumber:          item.ItemNumber,
		Quantity:            tag.Quantity,
		UserId:              user.ID,
		LocationName:        user.LocationName,
	}, now, r.cooldown)
	if err != nil {
		return nil, nil, err
	}

	fulfillment := r.recomputeBestEffort(ctx, tx, po, now)

	ordered := po.OrderedQty(item.ItemNumber)
	received := SumReceived(applied.Entries, item.ItemNumber)
	remaining := RemainingQty(ordered, received)

	result := &ScanResult{
		Tag:              *tag,
		Entry:            applied.Entry,
		Duplicate:        !applied.Appended,
		ReceivedQty:      received,
		OrderedQty:       ordered,
		RemainingQty:     remaining,
		Presence:         presence.State,
		PresenceDecision: presence.Decision,
		Status:           fulfillment.Status,
		StatusChanged:    fulfillment.Changed,
	}

	var events []Event
	if applied.Appended {
		events = append(events, ReceiptEvent{
			PurchaseOrderNumber: po.OrderNumber,
			ItemNumber:          item.ItemNumber,
			ItemDescription:     item.Description,
			ReceivedQty:         received,
			ScannedQty:          tag.Quantity,
			OrderedQty:          ordered,
			RemainingQty:        remaining,
			LotNumber:           tag.LotNumber,
			EPC:                 tag.Code,
			LocationName:        user.LocationName,
			LocationStatus:      string(presence.State.Status),
			UserId:              user.ID,
			Timestamp:           now,
		})
	}
	if presence.Decision.Changed() {
		events = append(events, newPresenceEvent(presence.State, now))
	}
	return result, events, nil
}

// recomputeBestEffort runs the fulfillment engine inside a savepoint so a
// failure there leaves the ledger and presence writes intact.
func (r *Reconciler) recomputeBestEffort(ctx context.Context, tx *gorm.DB, po *models.PurchaseOrder, now time.Time) FulfillmentResult {
	const savepoint = "fulfillment"
	fallback := FulfillmentResult{Status: po.CurrentStatus}
	if err := tx.SavePoint(savepoint).Error; err != nil {
		config.LogError(r.logger, "reconciler.go", "recomputeBestEffort", "SavePoint", po.OrderNumber, err)
		return fallback
	}
	res, err := RecomputeStatus(tx, po.ID, now)
	if err != nil {
		config.LogError(r.logger, "reconciler.go", "recomputeBestEffort", "RecomputeStatus", po.OrderNumber, err)
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			config.LogError(r.logger, "reconciler.go", "recomputeBestEffort", "RollbackTo", po.OrderNumber, rbErr)
		}
		return fallback
	}
	return *res
}

// TrackScan is the standalone tracker entry point: same tag resolution and
// presence machine as ProcessScan, no receipt accounting.
func (r *Reconciler) TrackScan(ctx context.Context, req ScanRequest) (*TrackResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.TrackScan")
	defer span.End()

	userId, err := req.validate()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("rfid.epc", req.EPC), attribute.Int("rfid.user_id", userId))
	now := r.clock.Now().UTC()

	var (
		result *TrackResult
		events []Event
	)
	err = retryOnDeadlock(ctx, func() error {
		result, events = nil, nil
		return withPinnedConn(ctx, r.db, func(conn *gorm.DB) error {
			tag, err := ResolveTagCode(ctx, conn, r.cache, req.EPC)
			if err != nil {
				return err
			}
			if err := AcquirePresenceLock(conn, tag.Code); err != nil {
				return err
			}
			defer ReleasePresenceLock(conn, tag.Code)

			return conn.Transaction(func(tx *gorm.DB) error {
				user, err := models.GetUserById(tx, userId)
				if err != nil {
					return err
				}
				presence, err := TrackPresence(tx, PresenceObservation{
					TagCode:             tag.Code,
					PurchaseOrderNumber: tag.PurchaseOrderNumber,
					ItemNumber:          tag.ItemNumber,
					Quantity:            tag.Quantity,
					UserId:              user.ID,
					LocationName:        user.LocationName,
				}, now, r.cooldown)
				if err != nil {
					return err
				}
				result = &TrackResult{Tag: *tag, Presence: presence.State, PresenceDecision: presence.Decision}
				if presence.Decision.Changed() {
					events = append(events, newPresenceEvent(presence.State, now))
				}
				return nil
			})
		})
	})
	if err != nil {
		span.RecordError(err)
		r.logScanError(ctx, "TrackScan", req, err)
		return nil, err
	}

	r.publish(ctx, events)
	return result, nil
}

func newPresenceEvent(state models.PresenceState, now time.Time) PresenceEvent {
	return PresenceEvent{
		ID:                  state.ID,
		EPC:                 state.TagCode,
		UserId:              state.UserId,
		PurchaseOrderNumber: state.PurchaseOrderNumber,
		ItemNumber:          state.ItemNumber,
		Quantity:            state.Quantity,
		Status:              string(state.Status),
		LocationName:        state.LocationName,
		CreatedAt:           state.SeenAt,
		Timestamp:           now,
		ActivityText:        ActivityText(state),
	}
}

// ActivityText is the one-line feed entry shown on dashboards.
func ActivityText(state models.PresenceState) string {
	verb := "checked in"
	if state.Status == models.PresenceStatusOut {
		verb = "checked out"
	}
	text := fmt.Sprintf("Tag %s %s", state.TagCode, verb)
	if state.LocationName != "" {
		text += " at " + state.LocationName
	}
	if state.ItemNumber != "" {
		text += fmt.Sprintf(" (item %s, PO %s)", state.ItemNumber, state.PurchaseOrderNumber)
	}
	return text
}

// publish never fails the scan: errors and panics from sinks are logged.
func (r *Reconciler) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, ev := range events {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					config.LogError(r.logger, "reconciler.go", "publish", "panic in publisher", ev.EventKind(), fmt.Errorf("%v", rec))
				}
			}()
			if err := r.publisher.Publish(pubCtx, ev); err != nil {
				config.LogError(r.logger, "reconciler.go", "publish", "Publish", ev, err)
			}
		}()
	}
}

func (r *Reconciler) logScanError(ctx context.Context, funcName string, req ScanRequest, err error) {
	if r.logger == nil {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	fields := logrus.Fields{
		"field":          funcName,
		"epc":            req.EPC,
		"value":          string(req.Value),
		"device_id":      req.DeviceId,
		"correlation_id": cid,
	}
	if deviceId, ok := utils.GetDeviceIdFromContext(ctx); ok {
		fields["device_id"] = deviceId
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		fields["user_id"] = userId
	}
	if errors.Is(err, utils.ErrNotFound) || errors.Is(err, utils.ErrBadRequest) || errors.Is(err, utils.ErrConflict) {
		r.logger.WithFields(fields).Warn("scan rejected: " + err.Error())
		return
	}
	r.logger.WithFields(fields).Error("scan failed: " + err.Error())
}

// ReconcileOpenOrders recomputes status for every Pending/Partial order under
// the same per-order lock scans use. Returns how many orders changed status.
func (r *Reconciler) ReconcileOpenOrders(ctx context.Context) (int, error) {
	numbers, err := models.ListOpenPurchaseOrderNumbers(r.db.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	changed := 0
	var errs []error
	for _, number := range numbers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := r.RecomputeOrder(ctx, number)
		if err != nil {
			config.LogError(r.logger, "reconciler.go", "ReconcileOpenOrders", "RecomputeOrder", number, err)
			errs = append(errs, fmt.Errorf("%s: %w", number, err))
			continue
		}
		if res.Changed {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// RecomputeOrder reconciles one order's status outside of a scan.
func (r *Reconciler) RecomputeOrder(ctx context.Context, poNumber string) (*FulfillmentResult, error) {
	var result *FulfillmentResult
	err := withPinnedConn(ctx, r.db, func(conn *gorm.DB) error {
		if err := AcquireReceiptLock(conn, poNumber); err != nil {
			return err
		}
		defer ReleaseReceiptLock(conn, poNumber)
		return conn.Transaction(func(tx *gorm.DB) error {
			po, err := models.GetPurchaseOrderByNumber(tx, poNumber)
			if err != nil {
				return err
			}
			res, err := RecomputeStatus(tx, po.ID, r.clock.Now().UTC())
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	return result, err
}

type ReceiptLine struct {
	ItemNumber   string          `json:"item_number"`
	OrderedQty   decimal.Decimal `json:"ordered_quantity"`
	ReceivedQty  decimal.Decimal `json:"received_quantity"`
	RemainingQty decimal.Decimal `json:"remaining_quantity"`
}

type ReceiptSummary struct {
	PurchaseOrderNumber string                     `json:"po_number"`
	Status              models.PurchaseOrderStatus `json:"status"`
	ReceivedAt          *time.Time                 `json:"received_at"`
	Lines               []ReceiptLine              `json:"lines"`
	Entries             []models.LedgerEntry       `json:"entries"`
}

// GetReceiptLedger reads an order's ledger with per-item totals.
func (r *Reconciler) GetReceiptLedger(ctx context.Context, poNumber string) (*ReceiptSummary, error) {
	db := r.db.WithContext(ctx)
	po, err := models.GetPurchaseOrderByNumber(db, poNumber)
	if err != nil {
		return nil, err
	}
	entries, err := models.GetReceiptLedgerEntries(db, po.ID)
	if err != nil {
		return nil, err
	}
	return BuildReceiptSummary(po, entries), nil
}

// BuildReceiptSummary lists one line per ordered item, in order-line order.
func BuildReceiptSummary(po *models.PurchaseOrder, entries []models.LedgerEntry) *ReceiptSummary {
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	ordered := po.OrderedQtyByItem()
	received := SumReceivedByItem(entries)
	seen := make(map[string]bool, len(po.Details))
	lines := make([]ReceiptLine, 0, len(po.Details))
	for _, d := range po.Details {
		if seen[d.ItemNumber] {
			continue
		}
		seen[d.ItemNumber] = true
		lines = append(lines, ReceiptLine{
			ItemNumber:   d.ItemNumber,
			OrderedQty:   ordered[d.ItemNumber],
			ReceivedQty:  received[d.ItemNumber],
			RemainingQty: RemainingQty(ordered[d.ItemNumber], received[d.ItemNumber]),
		})
	}
	return &ReceiptSummary{
		PurchaseOrderNumber: po.OrderNumber,
		Status:              po.CurrentStatus,
		ReceivedAt:          po.ReceivedAt,
		Lines:               lines,
		Entries:             entries,
	}
}
