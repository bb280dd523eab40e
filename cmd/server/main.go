package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"souq-crypto-pay/internal/chain"
	"souq-crypto-pay/internal/config"
	"souq-crypto-pay/internal/model"
	"souq-crypto-pay/internal/mq"
	"souq-crypto-pay/internal/repository"
	"souq-crypto-pay/internal/server"
	"souq-crypto-pay/internal/service"
	"souq-crypto-pay/pkg/esplora"
	"souq-crypto-pay/pkg/logger"
	"souq-crypto-pay/pkg/safe"
)

func main() {
	ctx := context.Background()

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic("加载配置失败: " + err.Error())
	}

	logger.Init("souq-pay", cfg.LogLevel)
	logger.Info(ctx, "配置加载成功",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("poll_interval", cfg.PollInterval))

	// 2. 连接数据库（Silent 模式不输出 SQL，只有错误时输出）
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatal(ctx, "连接数据库失败", zap.Error(err))
	}
	logger.Info(ctx, "数据库连接成功")

	// 自动迁移
	if err := db.AutoMigrate(&model.Order{}, &model.VerificationLog{}); err != nil {
		logger.Fatal(ctx, "数据库迁移失败", zap.Error(err))
	}

	// 3. 连接 RabbitMQ
	mqClient, err := mq.NewRabbitMQ(cfg.RabbitMQURL, cfg.OrderExpireMinutes)
	if err != nil {
		logger.Fatal(ctx, "连接 RabbitMQ 失败", zap.Error(err))
	}
	defer mqClient.Close()

	// 4. 初始化 Repository
	orderRepo := repository.NewOrderRepository(db)
	verificationRepo := repository.NewVerificationRepository(db)

	// 5. 初始化链客户端（显式构造注入，不用包级单例）
	btcClient := chain.NewBitcoinClient(esplora.NewClient(cfg.EsploraAPIURL, cfg.EsploraAPIKey))
	ethClient, err := chain.NewEthereumClient(cfg.EthRPCURL)
	if err != nil {
		logger.Fatal(ctx, "初始化以太坊客户端失败", zap.Error(err))
	}
	usdtClient := chain.NewTokenClient(ethClient, cfg.USDTContract, cfg.USDTWalletAddress)

	clients := map[string]chain.StatusClient{
		model.CryptoBTC:  btcClient,
		model.CryptoETH:  ethClient,
		model.CryptoUSDT: usdtClient,
	}

	wallets := map[string]string{
		model.CryptoBTC:  cfg.BTCWalletAddress,
		model.CryptoETH:  cfg.ETHWalletAddress,
		model.CryptoUSDT: cfg.USDTWalletAddress,
	}

	// 6. 初始化 Service
	verifier := service.NewVerifierService(clients, orderRepo, verificationRepo, mqClient, cfg.VerifyTimeout)
	orderService := service.NewOrderService(orderRepo, verificationRepo, verifier, mqClient, mqClient, wallets)
	poller := service.NewPollerService(orderRepo, verifier, cfg.PollInterval, cfg.PendingWindowHours, cfg.PollConcurrency)

	// 7. 创建可取消的 context
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 8. 启动过期消息消费者与轮询服务
	orderService.StartExpireConsumer(runCtx)
	safe.GoCtx(runCtx, poller.Start)

	// 9. 启动 HTTP 服务
	httpServer := server.NewHTTPServer(orderService, poller, orderRepo, cfg.HTTPPort)
	safe.Go(func() {
		logger.Info(runCtx, "HTTP 服务已启动", zap.Int("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(runCtx, "HTTP 服务异常", zap.Error(err))
		}
	})

	// 10. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info(ctx, "收到退出信号", zap.String("signal", sig.String()))

	cancel()
	if err := httpServer.Shutdown(context.Background()); err != nil {
		logger.Warn(ctx, "HTTP 服务关闭异常", zap.Error(err))
	}
	logger.Info(ctx, "服务已优雅退出")
}
