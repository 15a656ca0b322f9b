package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
	"bitbucket.org/mmdatafocus/rfid_backend/models/reports"
	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	scanBurstTTL      = 2 * time.Second
	scanBurstPoll     = 50 * time.Millisecond
	scanBurstMaxPolls = 40
)

type scanService interface {
	ProcessScan(ctx context.Context, req workflow.ScanRequest) (*workflow.ScanResult, error)
	TrackScan(ctx context.Context, req workflow.ScanRequest) (*workflow.TrackResult, error)
	GetReceiptLedger(ctx context.Context, poNumber string) (*workflow.ReceiptSummary, error)
}

// rfidAPI holds the HTTP surface. The service is installed once the database
// is up; until then handlers answer 503.
type rfidAPI struct {
	mu        sync.RWMutex
	svc       scanService
	logger    *logrus.Logger
	redisLock func() *redislock.Client
}

func newRfidAPI(logger *logrus.Logger) *rfidAPI {
	return &rfidAPI{logger: logger, redisLock: config.GetRedisLock}
}

func (a *rfidAPI) setService(svc scanService) {
	a.mu.Lock()
	a.svc = svc
	a.mu.Unlock()
}

func (a *rfidAPI) service(c *gin.Context) (scanService, bool) {
	a.mu.RLock()
	svc := a.svc
	a.mu.RUnlock()
	if svc == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return nil, false
	}
	return svc, true
}

func (a *rfidAPI) register(r gin.IRouter) {
	r.POST("/rfid/scan", a.scanHandler())
	r.POST("/rfid/track", a.trackHandler())
	r.GET("/purchase-orders/:number/receipts", a.receiptsHandler())
	r.GET("/purchase-orders/:number/receipts.xlsx", a.receiptsExportHandler())
}

func (a *rfidAPI) bindScan(c *gin.Context) (workflow.ScanRequest, bool) {
	var req workflow.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return req, false
	}
	ctx := c.Request.Context()
	if req.DeviceId != "" {
		ctx = utils.SetDeviceIdInContext(ctx, req.DeviceId)
	}
	if userId, err := req.Value.UserId(); err == nil {
		ctx = utils.SetUserIdInContext(ctx, userId)
	}
	c.Request = c.Request.WithContext(ctx)
	return req, true
}

func (a *rfidAPI) scanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := a.service(c)
		if !ok {
			return
		}
		req, ok := a.bindScan(c)
		if !ok {
			return
		}
		release := a.obtainBurstGuard(c.Request.Context(), req.EPC)
		defer release()

		res, err := svc.ProcessScan(c.Request.Context(), req)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (a *rfidAPI) trackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := a.service(c)
		if !ok {
			return
		}
		req, ok := a.bindScan(c)
		if !ok {
			return
		}
		release := a.obtainBurstGuard(c.Request.Context(), req.EPC)
		defer release()

		res, err := svc.TrackScan(c.Request.Context(), req)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (a *rfidAPI) receiptsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := a.service(c)
		if !ok {
			return
		}
		summary, err := svc.GetReceiptLedger(c.Request.Context(), c.Param("number"))
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func (a *rfidAPI) receiptsExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := a.service(c)
		if !ok {
			return
		}
		summary, err := svc.GetReceiptLedger(c.Request.Context(), c.Param("number"))
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+reports.ReceiptLedgerFileName(summary.PurchaseOrderNumber))
		c.Status(http.StatusOK)
		if err := reports.WriteReceiptLedgerXlsx(c.Writer, summary); err != nil {
			config.LogError(a.logger, "handlers.go", "receiptsExportHandler", "WriteReceiptLedgerXlsx", summary.PurchaseOrderNumber, err)
			_ = c.Error(err)
		}
	}
}

func (a *rfidAPI) writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	c.JSON(status, gin.H{
		"error":          utils.PublicMessage(err),
		"correlation_id": cid,
	})
}

// obtainBurstGuard queues reads of one EPC in Redis, so a reader burst waits
// there instead of holding pooled MySQL connections in GET_LOCK. The wait is
// bounded by scanBurstTTL; after that, or when Redis is unavailable, the scan
// proceeds and the MySQL locks keep it correct.
func (a *rfidAPI) obtainBurstGuard(ctx context.Context, epc string) func() {
	noop := func() {}
	epc = strings.TrimSpace(epc)
	if epc == "" || a.redisLock == nil {
		return noop
	}
	client := a.redisLock()
	if client == nil {
		return noop
	}
	lock, err := client.Obtain(ctx, fmt.Sprintf("scan:%s", epc), scanBurstTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(scanBurstPoll), scanBurstMaxPolls),
	})
	if err != nil {
		msg := "error obtaining redis lock; proceeding without redis lock: " + err.Error()
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			msg = "redis lock still held after waiting; proceeding without redis lock"
		}
		if a.logger != nil {
			a.logger.WithFields(logrus.Fields{
				"field": "obtainBurstGuard",
				"epc":   epc,
			}).Debug(msg)
		}
		return noop
	}
	return func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) && a.logger != nil {
			a.logger.WithFields(logrus.Fields{
				"field": "obtainBurstGuard",
				"epc":   epc,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
