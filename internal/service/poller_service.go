package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/pkg/logger"
)

// CycleSummary 一轮扫描的汇总
type CycleSummary struct {
	Processed int            `json:"processed"`
	Results   []VerifyResult `json:"results"` // 仅状态发生变化的订单
	Errors    int            `json:"errors"`
}

// PollerService 轮询调度器：定期拉取待核验订单，限并发逐单核验。
// 单轮互斥，上一轮没跑完就跳过本轮，避免同一订单被并发核验。
type PollerService struct {
	orders      OrderStore
	verifier    *VerifierService
	interval    time.Duration
	window      time.Duration
	concurrency int

	running atomic.Bool
}

func NewPollerService(
	orders OrderStore,
	verifier *VerifierService,
	intervalSec int,
	windowHours int,
	concurrency int,
) *PollerService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PollerService{
		orders:      orders,
		verifier:    verifier,
		interval:    time.Duration(intervalSec) * time.Second,
		window:      time.Duration(windowHours) * time.Hour,
		concurrency: concurrency,
	}
}

// Start 启动轮询服务
func (p *PollerService) Start(ctx context.Context) {
	logger.Info(ctx, "支付轮询服务已启动",
		zap.Duration("interval", p.interval),
		zap.Duration("window", p.window),
		zap.Int("concurrency", p.concurrency))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// 启动时立即扫描一次
	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "支付轮询服务已停止")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// runOnce 执行一轮并记录结果
func (p *PollerService) runOnce(ctx context.Context) {
	summary, err := p.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrCycleRunning) {
			logger.Warn(ctx, "上一轮扫描尚未结束，跳过本轮")
			return
		}
		logger.Error(ctx, "扫描周期失败", zap.Error(err))
		return
	}

	if summary.Processed > 0 || summary.Errors > 0 {
		logger.Info(ctx, "扫描周期完成",
			zap.Int("processed", summary.Processed),
			zap.Int("changed", len(summary.Results)),
			zap.Int("errors", summary.Errors))
	}
}

// RunCycle 执行一轮扫描：互斥保护，限并发核验，单笔失败不影响整批。
// 上一轮未结束时返回 apperr.ErrCycleRunning。
func (p *PollerService) RunCycle(ctx context.Context) (*CycleSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, apperr.ErrCycleRunning
	}
	defer p.running.Store(false)

	orders, err := p.orders.ListPending(p.window)
	if err != nil {
		return nil, err
	}

	summary := &CycleSummary{Results: make([]VerifyResult, 0)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i := range orders {
		order := orders[i]
		g.Go(func() error {
			result, verr := p.verifier.VerifyOrder(ctx, &order)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if verr != nil {
				// 按单隔离：记下错误继续处理其余订单
				summary.Errors++
				logger.Warn(ctx, "核验订单失败",
					zap.String("order_id", order.ID),
					zap.String("crypto", order.Crypto),
					zap.Error(verr))
				return nil
			}
			if result.Changed {
				summary.Results = append(summary.Results, result)
			}
			return nil
		})
	}

	_ = g.Wait()
	return summary, nil
}
