package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"souq-crypto-pay/internal/config"
	"souq-crypto-pay/internal/model"
	"souq-crypto-pay/internal/mq"
)

// 端到端探针：通过 HTTP 创建订单，然后监听通知队列等待该订单的终态事件
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("========== Souq Pay 端到端测试 ==========")

	// 1. 加载配置（获取 HTTP 端口和 RabbitMQ 地址）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 通过 HTTP 创建订单（金额 100 USDT）
	log.Println("")
	log.Println("==========================================")
	log.Println("  步骤 1: 创建订单 (金额: 100, 币种: USDT)")
	log.Println("==========================================")

	body, _ := json.Marshal(map[string]interface{}{
		"amount":        100,
		"crypto":        "USDT",
		"customerEmail": "probe@example.com",
		"customerName":  "e2e-probe",
	})

	url := fmt.Sprintf("http://localhost:%d/api/create-order", cfg.HTTPPort)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("创建订单请求失败: %v", err)
	}
	defer resp.Body.Close()

	var created struct {
		Success bool `json:"success"`
		Order   struct {
			ID          string `json:"id"`
			Amount      string `json:"amount"`
			Crypto      string `json:"crypto"`
			AdminWallet string `json:"adminWallet"`
			Status      string `json:"status"`
		} `json:"order"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatalf("解析创建响应失败: %v", err)
	}
	if !created.Success {
		log.Fatalf("创建订单失败 (HTTP %d): %s", resp.StatusCode, created.Error)
	}

	log.Println("[OK] 订单创建成功!")
	log.Printf("    订单 ID:    %s", created.Order.ID)
	log.Printf("    金额:       %s %s", created.Order.Amount, created.Order.Crypto)
	log.Printf("    收款钱包:   %s", created.Order.AdminWallet)
	log.Printf("    状态:       %s", created.Order.Status)

	// 3. 连接 RabbitMQ（用于消费通知）
	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("连接 RabbitMQ 失败: %v", err)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Fatalf("打开 RabbitMQ Channel 失败: %v", err)
	}
	defer amqpCh.Close()
	log.Println("[OK] RabbitMQ 连接成功")

	// 4. 启动通知消费者，监听确认 / 失败事件
	log.Println("")
	log.Println("==========================================")
	log.Println("  步骤 2: 监听通知队列 (确认 / 失败)")
	log.Println("==========================================")
	log.Printf("  - 订单将在 %d 分钟后过期", cfg.OrderExpireMinutes)
	log.Println("  - 链上确认转账 -> confirmed 通知")
	log.Println("  - 超时未支付 -> failed (expired) 通知")
	log.Println("  - 按 Ctrl+C 退出")
	log.Println("")

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go consumeNotify(runCtx, amqpCh, created.Order.ID)

	// 5. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("")
	log.Println("收到退出信号，正在关闭...")
	runCancel()
	time.Sleep(500 * time.Millisecond)
	log.Println("测试已退出")
}

// consumeNotify 消费通知队列，过滤出当前订单的通知
func consumeNotify(ctx context.Context, ch *amqp.Channel, targetOrderID string) {
	consumerTag := fmt.Sprintf("test-notify-%d", time.Now().UnixNano())
	msgs, err := ch.Consume(mq.NotifyQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		log.Printf("订阅通知队列失败: %v", err)
		return
	}

	log.Println("[OK] 通知队列订阅成功，等待消息...")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Println("通知消费通道已关闭")
				return
			}

			var notify mq.OrderNotifyMessage
			if err := json.Unmarshal(msg.Body, &notify); err != nil {
				log.Printf("解析通知消息失败: %v", err)
				msg.Nack(false, false)
				continue
			}

			// 只关注当前测试创建的订单
			if notify.OrderID != targetOrderID {
				log.Printf("  (忽略其他订单通知: %s)", notify.OrderID)
				msg.Ack(false)
				continue
			}

			log.Println("")
			log.Println("**************************************************")
			switch notify.Status {
			case model.OrderStatusConfirmed:
				log.Println("  >>> 支付已确认!")
			case model.OrderStatusFailed:
				log.Printf("  >>> 订单失败! 原因: %s", notify.FailReason)
			default:
				log.Printf("  >>> 未知状态: %s", notify.Status)
			}
			log.Printf("    订单 ID:    %s", notify.OrderID)
			log.Printf("    币种:       %s", notify.Crypto)
			log.Printf("    金额:       %s", notify.Amount)
			log.Printf("    收款钱包:   %s", notify.AdminWallet)
			if notify.TxHash != "" {
				log.Printf("    交易哈希:   %s", notify.TxHash)
			}
			log.Printf("    时间戳:     %s", time.Unix(notify.Timestamp, 0).Format("2006-01-02 15:04:05"))
			log.Println("**************************************************")
			log.Println("")

			msg.Ack(false)
		}
	}
}
